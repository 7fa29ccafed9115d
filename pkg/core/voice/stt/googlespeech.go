package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleSpeech transcribes through the Google Cloud Speech-to-Text API.
// Authentication uses Application Default Credentials.
type GoogleSpeech struct {
	client   *speech.Client
	language string
}

// NewGoogleSpeech creates a Google Cloud Speech provider. language may be
// empty to default to en-US.
func NewGoogleSpeech(ctx context.Context, language string) (*GoogleSpeech, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleSpeech{client: client, language: language}, nil
}

// Name returns the provider identifier.
func (g *GoogleSpeech) Name() string { return "google-speech" }

// Close releases the underlying gRPC connection.
func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

// Transcribe runs synchronous recognition over the utterance and joins the
// result alternatives in order.
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	language := opts.Language
	if language == "" {
		language = g.language
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:     encodingFor(opts.Format),
		LanguageCode: language,
	}
	if opts.SampleRate > 0 {
		cfg.SampleRateHertz = int32(opts.SampleRate)
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("google speech recognize: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	return strings.Join(parts, " "), nil
}

func encodingFor(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch format {
	case "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "ogg", "webm":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		// Let the service sniff containerised formats.
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
