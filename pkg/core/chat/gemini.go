package chat

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/genai"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

// GeminiBackend talks to the Gemini API through the google.golang.org/genai
// SDK. Like Anthropic, Gemini carries the system directive out of band.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini chat backend.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Name returns the backend identifier for logs.
func (b *GeminiBackend) Name() string { return "gemini/" + b.model }

func (b *GeminiBackend) buildRequest(msgs []types.Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens != 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			}
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, cfg
}

// Complete returns the full assistant reply for the given history.
func (b *GeminiBackend) Complete(ctx context.Context, msgs []types.Message, opts Options) (string, error) {
	contents, cfg := b.buildRequest(msgs, opts)
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	return resp.Text(), nil
}

// Stream starts a streaming completion over the given history.
func (b *GeminiBackend) Stream(ctx context.Context, msgs []types.Message, opts Options) (TextStream, error) {
	contents, cfg := b.buildRequest(msgs, opts)
	streamCtx, cancel := context.WithCancel(ctx)

	stream := &geminiStream{
		fragments: make(chan geminiFragment),
		cancel:    cancel,
	}
	go func() {
		defer close(stream.fragments)
		for resp, err := range b.client.Models.GenerateContentStream(streamCtx, b.model, contents, cfg) {
			if err != nil {
				select {
				case stream.fragments <- geminiFragment{err: fmt.Errorf("gemini stream: %w", err)}:
				case <-streamCtx.Done():
				}
				return
			}
			select {
			case stream.fragments <- geminiFragment{text: resp.Text()}:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return stream, nil
}

type geminiFragment struct {
	text string
	err  error
}

// geminiStream bridges the SDK iterator onto a pull-based stream.
type geminiStream struct {
	fragments chan geminiFragment
	cancel    context.CancelFunc
	err       error
}

// Next returns the next text fragment, or io.EOF when the stream is done.
func (s *geminiStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	frag, ok := <-s.fragments
	if !ok {
		s.err = io.EOF
		return "", io.EOF
	}
	if frag.err != nil {
		s.err = frag.err
		return "", frag.err
	}
	return frag.text, nil
}

// Close stops the producing goroutine.
func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}
