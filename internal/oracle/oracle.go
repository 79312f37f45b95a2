// Package oracle defines the two-method capability Memory Bank uses
// for everything vector- and language-model-related: embedding text
// for the index and chatting for summarization/reranking. Callers
// depend only on the Oracle interface (§4.4, §9 "Oracle as a
// capability"); concrete backends (Ollama, Gemini) and a deterministic
// test fake live in sibling files.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/memorybank/membank/internal/errs"
)

// Oracle is the embedding-plus-chat capability passed explicitly to
// every component that needs it (index build, retriever rerank,
// project state). No package reaches for a side-channel client.
type Oracle interface {
	// Embed returns a fixed-dimension float vector for text. Failure
	// modes map to errs.ErrOracleUnreachable, errs.ErrOracleModelMissing,
	// or errs.ErrOracleTimeout.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Chat issues a single prompt and returns the completion text.
	Chat(ctx context.Context, prompt string) (string, error)
}

// Timeouts holds the default connect/read timeouts from §5: connect 5s,
// read 60s, both configurable per backend.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
}

// DefaultTimeouts returns the spec's default oracle timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: 5 * time.Second, Read: 60 * time.Second}
}

// WithRetry wraps an Oracle call with the single exponential-backoff
// retry prescribed at the search/build boundary (§7): one retry after
// a short delay, then surface the error as-is.
func WithRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if !isRetryable(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return fn(ctx)
}

func isRetryable(err error) bool {
	return errors.Is(err, errs.ErrOracleUnreachable) || errors.Is(err, errs.ErrOracleTimeout)
}
