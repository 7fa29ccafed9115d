package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/types"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
	"github.com/voiceloop/voiceloop/pkg/gateway/mw"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// STTHandler serves one-shot transcription: a multipart audio upload in,
// the transcript out.
type STTHandler struct {
	STT          stt.Provider
	Logger       *slog.Logger
	MaxBodyBytes int64
	Language     string
}

func (h STTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "`file` upload missing")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	text, err := h.STT.Transcribe(r.Context(), audio, stt.TranscribeOptions{Language: h.Language})
	if err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.logger().Error("transcription failed", "request_id", reqID, "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h STTHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Completer produces a full reply for a message history. The chat router
// satisfies this.
type Completer interface {
	Complete(ctx context.Context, msgs []types.Message, opts chat.Options) (string, error)
}

// ChatHandler serves one-shot text completion: {"text": ...} in, the full
// reply out.
type ChatHandler struct {
	Chat         Completer
	Logger       *slog.Logger
	Directive    string
	Temperature  float64
	MaxBodyBytes int64
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "`text` field missing")
		return
	}

	msgs := []types.Message{
		{Role: types.RoleSystem, Content: h.Directive},
		{Role: types.RoleUser, Content: body.Text},
	}
	reply, err := h.Chat.Complete(r.Context(), msgs, chat.Options{Temperature: h.Temperature})
	if err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.logger().Error("completion failed", "request_id", reqID, "error", err)
		writeError(w, http.StatusBadGateway, "completion failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (h ChatHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// TTSHandler serves one-shot synthesis: {"text": ...} in, audio bytes out,
// streamed as they are produced.
type TTSHandler struct {
	TTS          tts.Provider
	Logger       *slog.Logger
	Voice        string
	MaxBodyBytes int64
}

func (h TTSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "`text` field missing")
		return
	}

	stream, err := h.TTS.SynthesizeStream(r.Context(), body.Text, tts.SynthesizeOptions{Voice: h.Voice})
	if err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.logger().Error("synthesis failed", "request_id", reqID, "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `inline; filename=reply.mp3`)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for chunk := range stream.Chunks() {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := stream.Err(); err != nil {
		// Headers are gone; all we can do is log the truncation.
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.logger().Error("synthesis ended early", "request_id", reqID, "error", err)
	}
}

func (h TTSHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
