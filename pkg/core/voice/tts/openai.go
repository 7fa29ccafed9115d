package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "tts-1"
	defaultOpenAIVoice   = "nova"

	// openAIChunkSize is the read size used to re-chunk the HTTP body into
	// stream sends.
	openAIChunkSize = 4096
)

// OpenAI synthesizes through the OpenAI speech endpoint. The endpoint
// returns one HTTP body; chunked reads turn it into a stream so playback
// can start before the full reply is downloaded.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI TTS provider. baseURL, model and voice may be
// empty to use the defaults.
func NewOpenAI(apiKey, baseURL, model, voice string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		voice:      voice,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Name returns the provider identifier.
func (o *OpenAI) Name() string { return "openai-tts" }

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// SynthesizeStream posts the text and re-chunks the response body onto the
// returned stream.
func (o *OpenAI) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	voice := opts.Voice
	if voice == "" {
		voice = o.voice
	}
	body := openAISpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: opts.Format,
		Speed:          opts.Speed,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("openai tts api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	stream := NewSynthesisStream()
	go func() {
		defer resp.Body.Close()
		buf := make([]byte, openAIChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(chunk) {
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					stream.SetError(fmt.Errorf("read openai tts body: %w", err))
				}
				stream.FinishSending()
				return
			}
		}
	}()
	return stream, nil
}
