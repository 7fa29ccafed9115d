package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 1024
)

// AnthropicBackend talks to the Anthropic Messages API. The system directive
// travels in the dedicated system field rather than the message list.
type AnthropicBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewAnthropicBackend creates an Anthropic chat backend.
func NewAnthropicBackend(apiKey, baseURL, model string) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Name returns the backend identifier for logs.
func (b *AnthropicBackend) Name() string { return "anthropic/" + b.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

func (b *AnthropicBackend) newRequest(ctx context.Context, msgs []types.Message, opts Options, stream bool) (*http.Request, error) {
	body := anthropicRequest{
		Model:       b.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = anthropicMaxTokens
	}
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			if body.System == "" {
				body.System = m.Content
			} else {
				body.System += "\n\n" + m.Content
			}
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

// Complete returns the full assistant reply for the given history.
func (b *AnthropicBackend) Complete(ctx context.Context, msgs []types.Message, opts Options) (string, error) {
	req, err := b.newRequest(ctx, msgs, opts, false)
	if err != nil {
		return "", err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("anthropic", resp)
	}

	var decoded struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var out strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

// Stream starts a streaming completion over the given history.
func (b *AnthropicBackend) Stream(ctx context.Context, msgs []types.Message, opts Options) (TextStream, error) {
	req, err := b.newRequest(ctx, msgs, opts, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError("anthropic", resp)
	}
	return newAnthropicStream(resp.Body), nil
}

// anthropicStream decodes Anthropic SSE events into text fragments.
type anthropicStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

func newAnthropicStream(body io.ReadCloser) *anthropicStream {
	return &anthropicStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next text fragment, or io.EOF when the stream is done.
func (s *anthropicStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.finished {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.finished = true
				return "", io.EOF
			}
			s.err = err
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "event: ") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip unparseable events
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				return event.Delta.Text, nil
			}
		case "message_stop":
			s.finished = true
			return "", io.EOF
		}
	}
}

// Close releases resources associated with the stream.
func (s *anthropicStream) Close() error {
	return s.closer.Close()
}
