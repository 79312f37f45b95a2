package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/memorybank/membank/internal/errs"
)

// Gemini implements Oracle against Google's Gemini API. It is the
// second concrete backend named in the config schema's
// oracle.backend enum alongside Ollama; embedding uses the
// text-embedding model family, chat the generative model (§6).
type Gemini struct {
	client     *genai.Client
	embedModel string
	chatModel  string
	timeouts   Timeouts
}

// NewGemini constructs a Gemini-backed oracle. Returns an error if the
// API key is rejected at client construction time.
func NewGemini(ctx context.Context, apiKey, embedModel, chatModel string, timeouts Timeouts) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrOracleUnreachable, "construct gemini client", err)
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	if chatModel == "" {
		chatModel = "gemini-3-flash-preview"
	}
	return &Gemini{client: client, embedModel: embedModel, chatModel: chatModel, timeouts: timeouts}, nil
}

// Embed requests a single embedding vector from the Gemini embedding
// model.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Read)
	defer cancel()

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errs.Wrap(errs.ErrOracleModelMissing, "empty embedding response for model "+g.embedModel, nil)
	}
	return result.Embeddings[0].Values, nil
}

// Chat issues a single prompt to the Gemini generative model and
// returns its text response.
func (g *Gemini) Chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Read)
	defer cancel()

	result, err := g.client.Models.GenerateContent(ctx, g.chatModel, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errs.Wrap(errs.ErrOracleModelMissing, "empty chat response for model "+g.chatModel, nil)
	}

	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text += part.Text
		}
	}
	if text == "" {
		return "", errs.Wrap(errs.ErrOracleModelMissing, "no text in gemini response", nil)
	}
	return text, nil
}

func classifyGeminiErr(err error) error {
	if err == context.DeadlineExceeded {
		return errs.Wrap(errs.ErrOracleTimeout, "gemini request", err)
	}
	return errs.Wrap(errs.ErrOracleUnreachable, fmt.Sprintf("gemini request: %v", err), err)
}
