// Package stt provides speech-to-text providers.
package stt

import "context"

// Provider converts a complete captured utterance into text.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text. The audio is one complete
	// utterance, not a live stream.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (string, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Language   string // ISO language code; empty lets the provider detect
	Format     string // Audio format hint (wav, webm, ogg)
	SampleRate int    // Sample rate in Hz, for raw encodings
}
