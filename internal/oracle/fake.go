package oracle

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Fake is a deterministic Oracle test double (§9, "Oracle as a
// capability... tests substitute a deterministic fake"). Embed derives
// a stable low-dimension vector from the text's hash so that repeated
// calls with the same text are bit-identical and similar inputs are
// not accidentally orthogonal. Chat returns a canned or keyword-keyed
// response.
type Fake struct {
	Dim int

	// ChatResponses, when non-nil, maps a substring of the prompt to the
	// response returned for any prompt containing it. When several keys
	// match, which one's response is returned is not defined (map
	// iteration order). Falls back to DefaultChatResponse.
	ChatResponses      map[string]string
	DefaultChatResponse string

	// FailEmbed / FailChat, set by a test, force the next call(s) to
	// return the given error instead of a result.
	FailEmbed error
	FailChat  error

	EmbedCalls int
	ChatCalls  int
}

// NewFake returns a Fake with an 8-dimension embedding space.
func NewFake() *Fake {
	return &Fake{Dim: 8, DefaultChatResponse: "{}"}
}

// Embed deterministically hashes text into a unit-length float32
// vector of f.Dim dimensions.
func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	f.EmbedCalls++
	if f.FailEmbed != nil {
		return nil, f.FailEmbed
	}
	dim := f.Dim
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	h := fnv.New64a()
	for i := 0; i < dim; i++ {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		// Map to [-1, 1].
		vec[i] = float32(int64(sum%2000)-1000) / 1000.0
	}
	normalize(vec)
	return vec, nil
}

// Chat returns a canned response keyed by prompt substring, or the
// default response.
func (f *Fake) Chat(ctx context.Context, prompt string) (string, error) {
	f.ChatCalls++
	if f.FailChat != nil {
		return "", f.FailChat
	}
	for key, resp := range f.ChatResponses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return f.DefaultChatResponse, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
