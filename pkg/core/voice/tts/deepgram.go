package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
)

const (
	defaultDeepgramWSURL = "wss://api.deepgram.com/v1/speak"
	defaultDeepgramModel = "aura-asteria-en"
)

// Deepgram synthesizes through the Deepgram Speak WebSocket API. Audio
// arrives as binary frames while JSON text frames carry control metadata.
type Deepgram struct {
	apiKey string
	wsURL  string
	model  string
	dialer *websocket.Dialer
}

// NewDeepgram creates a Deepgram TTS provider. wsURL and model may be empty
// to use the defaults.
func NewDeepgram(apiKey, wsURL, model string) (*Deepgram, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key is required")
	}
	if wsURL == "" {
		wsURL = defaultDeepgramWSURL
	}
	if model == "" {
		model = defaultDeepgramModel
	}
	return &Deepgram{
		apiKey: apiKey,
		wsURL:  wsURL,
		model:  model,
		dialer: websocket.DefaultDialer,
	}, nil
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string { return "deepgram" }

type deepgramControl struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (d *Deepgram) speakURL(opts SynthesizeOptions) (string, error) {
	u, err := url.Parse(d.wsURL)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	model := opts.Voice
	if model == "" {
		model = d.model
	}
	q.Set("model", model)
	if opts.Format != "" {
		q.Set("encoding", opts.Format)
	}
	if opts.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SynthesizeStream opens a Speak session, sends the text followed by Flush
// and Close, and relays binary frames onto the returned stream until the
// server closes the socket.
func (d *Deepgram) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	target, err := d.speakURL(opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)
	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	for _, msg := range []deepgramControl{
		{Type: "Speak", Text: text},
		{Type: "Flush"},
		{Type: "Close"},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("deepgram send %s: %w", msg.Type, err)
		}
	}

	stream := NewSynthesisStream()
	go func() {
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					stream.SetError(fmt.Errorf("deepgram read: %w", err))
				}
				stream.FinishSending()
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				if !stream.Send(data) {
					return
				}
			case websocket.TextMessage:
				var meta struct {
					Type        string `json:"type"`
					Description string `json:"description"`
				}
				if err := json.Unmarshal(data, &meta); err != nil {
					continue
				}
				switch meta.Type {
				case "Error":
					stream.SetError(fmt.Errorf("deepgram error: %s", meta.Description))
					stream.FinishSending()
					return
				case "Flushed":
					stream.FinishSending()
					return
				}
			}
		}
	}()
	return stream, nil
}
