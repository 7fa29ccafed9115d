package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultWhisperBaseURL = "https://api.openai.com/v1"
	defaultWhisperModel   = "whisper-1"
)

// Whisper transcribes through the OpenAI audio transcription endpoint.
type Whisper struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewWhisper creates a Whisper provider. baseURL and model may be empty to
// use the defaults.
func NewWhisper(apiKey, baseURL, model string) (*Whisper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = defaultWhisperBaseURL
	}
	if model == "" {
		model = defaultWhisperModel
	}
	return &Whisper{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name returns the provider identifier.
func (w *Whisper) Name() string { return "whisper" }

// Transcribe sends the utterance as a multipart upload and returns the text.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := "utterance." + audioExtension(opts.Format)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return "", fmt.Errorf("build multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("whisper api error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	return decoded.Text, nil
}

func audioExtension(format string) string {
	switch format {
	case "wav", "mp3", "webm", "ogg", "flac", "m4a":
		return format
	default:
		return "wav"
	}
}
