// Package chat provides chat-completion backends and a router that fails
// over between them.
package chat

import (
	"context"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

// Options configures a single completion call.
type Options struct {
	Temperature float64 // 0 means backend default
	MaxTokens   int     // 0 means backend default
}

// TextStream iterates text fragments of a streaming completion in
// generation order. Next returns io.EOF when the stream is complete. A
// stream is finite and not restartable.
type TextStream interface {
	Next() (string, error)
	Close() error
}

// Backend is a single chat-completion strategy (one vendor + model).
type Backend interface {
	// Name returns the backend identifier for logs.
	Name() string

	// Complete returns the full assistant reply for the given history.
	Complete(ctx context.Context, msgs []types.Message, opts Options) (string, error)

	// Stream starts a streaming completion over the given history.
	Stream(ctx context.Context, msgs []types.Message, opts Options) (TextStream, error)
}
