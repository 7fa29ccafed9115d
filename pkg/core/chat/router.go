package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

// Router tries an ordered list of backends until one succeeds. The swap is
// transparent to callers: they observe a single logical call that may come
// from a different backend. Fallback applies when opening a call or stream
// fails; once a stream is open, a mid-stream failure is the caller's to
// handle.
type Router struct {
	backends []Backend
	logger   *slog.Logger
}

// NewRouter creates a router over backends in priority order.
func NewRouter(logger *slog.Logger, backends ...Backend) (*Router, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one chat backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{backends: backends, logger: logger}, nil
}

// Complete returns the full reply from the first backend that succeeds.
func (r *Router) Complete(ctx context.Context, msgs []types.Message, opts Options) (string, error) {
	var lastErr error
	for _, b := range r.backends {
		text, err := b.Complete(ctx, msgs, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err
		r.logger.Warn("chat backend failed, trying next", "backend", b.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all chat backends failed: %w", lastErr)
}

// Stream opens a streaming completion on the first backend that accepts it.
func (r *Router) Stream(ctx context.Context, msgs []types.Message, opts Options) (TextStream, error) {
	var lastErr error
	for _, b := range r.backends {
		stream, err := b.Stream(ctx, msgs, opts)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		r.logger.Warn("chat backend stream failed to open, trying next", "backend", b.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all chat backends failed: %w", lastErr)
}
