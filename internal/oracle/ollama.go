package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/memorybank/membank/internal/errs"
)

const ollamaDefaultURL = "http://localhost:11434"

// Ollama implements Oracle against a local Ollama server's HTTP API
// (§6, "Oracle interface"): /api/embeddings for Embed, /api/chat for
// Chat.
type Ollama struct {
	baseURL    string
	embedModel string
	chatModel  string
	client     *http.Client
}

// NewOllama constructs an Ollama-backed oracle. baseURL defaults to
// localhost:11434 when empty.
func NewOllama(baseURL, embedModel, chatModel string, timeouts Timeouts) *Ollama {
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	return &Ollama{
		baseURL:    baseURL,
		embedModel: embedModel,
		chatModel:  chatModel,
		client: &http.Client{
			Timeout: timeouts.Read,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: timeouts.Connect}).DialContext,
			},
		},
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed requests a single embedding vector from Ollama's
// /api/embeddings endpoint.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.embedModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	var resp ollamaEmbedResponse
	if err := o.post(ctx, "/api/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errs.Wrap(errs.ErrOracleModelMissing, "empty embedding response for model "+o.embedModel, nil)
	}
	return resp.Embeddings[0], nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Chat issues a single non-streaming chat completion against Ollama's
// /api/chat endpoint.
func (o *Ollama) Chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.chatModel,
		Stream:   false,
		Messages: []ollamaChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var resp ollamaChatResponse
	if err := o.post(ctx, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", errs.Wrap(errs.ErrOracleModelMissing, "empty chat response for model "+o.chatModel, nil)
	}
	return resp.Message.Content, nil
}

func (o *Ollama) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrOracleTimeout, path, err)
		}
		return errs.Wrap(errs.ErrOracleUnreachable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrOracleUnreachable, "read oracle response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errs.Wrap(errs.ErrOracleModelMissing, string(data), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.Wrap(errs.ErrOracleUnreachable, fmt.Sprintf("oracle http %d: %s", resp.StatusCode, data), nil)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal oracle response: %w", err)
	}
	return nil
}
