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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIBackend talks to the OpenAI Chat Completions API.
type OpenAIBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIBackend creates an OpenAI chat backend. baseURL may be empty to
// use the public endpoint.
func NewOpenAIBackend(apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIBackend{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Name returns the backend identifier for logs.
func (b *OpenAIBackend) Name() string { return "openai/" + b.model }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

func (b *OpenAIBackend) newRequest(ctx context.Context, msgs []types.Message, opts Options, stream bool) (*http.Request, error) {
	body := openAIRequest{
		Model:       b.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	for _, m := range msgs {
		body.Messages = append(body.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	return req, nil
}

// Complete returns the full assistant reply for the given history.
func (b *OpenAIBackend) Complete(ctx context.Context, msgs []types.Message, opts Options) (string, error) {
	req, err := b.newRequest(ctx, msgs, opts, false)
	if err != nil {
		return "", err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("openai", resp)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// Stream starts a streaming completion over the given history.
func (b *OpenAIBackend) Stream(ctx context.Context, msgs []types.Message, opts Options) (TextStream, error) {
	req, err := b.newRequest(ctx, msgs, opts, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError("openai", resp)
	}
	return newOpenAIStream(resp.Body), nil
}

// openAIStream decodes OpenAI SSE chunks into text fragments.
type openAIStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

func newOpenAIStream(body io.ReadCloser) *openAIStream {
	return &openAIStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next text fragment, or io.EOF when the stream is done.
func (s *openAIStream) Next() (string, error) {
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
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.finished = true
			return "", io.EOF
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // skip unparseable chunks
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
}

// Close releases resources associated with the stream.
func (s *openAIStream) Close() error {
	return s.closer.Close()
}

// apiError drains a non-2xx response into an error with the status and a
// bounded excerpt of the body.
func apiError(vendor string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s api error: status %d: %s", vendor, resp.StatusCode, strings.TrimSpace(string(body)))
}
