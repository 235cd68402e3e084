// Package embedding wraps the external embedding model behind a small
// interface so the semantic cache never talks to a vendor API directly.
package embedding

import (
	"context"
	"errors"
)

// Sentinel errors for embedding client failures.
var (
	ErrUnavailable     = errors.New("embedding service unavailable")
	ErrInvalidResponse = errors.New("embedding service returned invalid response")
)

// Client computes a dense vector for a piece of text. Implementations retry
// transient failures internally; a returned error means the text could not be
// embedded at all.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
