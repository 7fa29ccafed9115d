// Package tts provides text-to-speech providers.
package tts

import (
	"context"
	"sync"
)

// Provider converts assistant text into audio.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// SynthesizeStream converts text to streaming audio. Chunks arrive on
	// the returned stream as the provider generates them.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice identifier
	Speed      float64 // Speed multiplier, 0 for provider default
	Format     string  // Output format (mp3, wav, pcm)
	SampleRate int     // Sample rate for raw encodings
}

// SynthesisStream carries streamed audio from a producing provider to a
// consuming session. The producer calls Send, then FinishSending (or
// SetError followed by FinishSending); the consumer ranges over Chunks and
// checks Err once the channel is closed.
type SynthesisStream struct {
	chunks   chan []byte
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks. It is closed when the
// producer finishes.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream is closed and returns the producer error, if
// any.
func (s *SynthesisStream) Err() error {
	<-s.done
	return s.err
}

// Close releases the consumer side. A blocked producer unblocks and stops.
// Safe to call concurrently with FinishSending.
func (s *SynthesisStream) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// SetError records the producer error. Call before FinishSending.
func (s *SynthesisStream) SetError(err error) {
	s.err = err
}

// Send delivers a chunk to the consumer. Returns false if the stream was
// closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending signals that no more chunks will arrive.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
	s.doneOnce.Do(func() { close(s.done) })
}
