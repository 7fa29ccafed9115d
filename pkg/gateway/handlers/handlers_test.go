package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/types"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

type fakeSTT struct {
	text     string
	err      error
	gotAudio []byte
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (string, error) {
	f.gotAudio = append([]byte(nil), audio...)
	return f.text, f.err
}

func multipartBody(t *testing.T, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSTTHandler(t *testing.T) {
	provider := &fakeSTT{text: "hello world"}
	h := STTHandler{STT: provider, Logger: discardLogger()}

	body, contentType := multipartBody(t, []byte("AUDIO"))
	req := httptest.NewRequest(http.MethodPost, "/v1/stt", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["text"] != "hello world" {
		t.Fatalf("text = %q", resp["text"])
	}
	if string(provider.gotAudio) != "AUDIO" {
		t.Fatalf("audio = %q", provider.gotAudio)
	}
}

func TestSTTHandlerMissingFile(t *testing.T) {
	h := STTHandler{STT: &fakeSTT{}, Logger: discardLogger()}
	req := httptest.NewRequest(http.MethodPost, "/v1/stt", strings.NewReader("not multipart"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSTTHandlerProviderError(t *testing.T) {
	h := STTHandler{STT: &fakeSTT{err: errors.New("upstream down")}, Logger: discardLogger()}

	body, contentType := multipartBody(t, []byte("AUDIO"))
	req := httptest.NewRequest(http.MethodPost, "/v1/stt", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "upstream down") {
		t.Fatal("provider error detail leaked to client")
	}
}

type fakeCompleter struct {
	reply   string
	err     error
	gotMsgs []types.Message
	gotOpts chat.Options
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []types.Message, opts chat.Options) (string, error) {
	f.gotMsgs = msgs
	f.gotOpts = opts
	return f.reply, f.err
}

func TestChatHandler(t *testing.T) {
	completer := &fakeCompleter{reply: "I'm here for you."}
	h := ChatHandler{Chat: completer, Logger: discardLogger(), Directive: "be kind", Temperature: 0.7}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"text":"I feel low"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["response"] != "I'm here for you." {
		t.Fatalf("response = %q", resp["response"])
	}
	if len(completer.gotMsgs) != 2 || completer.gotMsgs[0].Role != types.RoleSystem || completer.gotMsgs[1].Content != "I feel low" {
		t.Fatalf("messages = %+v", completer.gotMsgs)
	}
	if completer.gotOpts.Temperature != 0.7 {
		t.Fatalf("temperature = %v", completer.gotOpts.Temperature)
	}
}

func TestChatHandlerMissingText(t *testing.T) {
	h := ChatHandler{Chat: &fakeCompleter{}, Logger: discardLogger()}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

type fakeTTS struct {
	chunks  [][]byte
	openErr error
	gotText string
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) SynthesizeStream(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.SynthesisStream, error) {
	f.gotText = text
	if f.openErr != nil {
		return nil, f.openErr
	}
	stream := tts.NewSynthesisStream()
	go func() {
		for _, chunk := range f.chunks {
			if !stream.Send(chunk) {
				return
			}
		}
		stream.FinishSending()
	}()
	return stream, nil
}

func TestTTSHandler(t *testing.T) {
	provider := &fakeTTS{chunks: [][]byte{[]byte("mp3-a"), []byte("mp3-b")}}
	h := TTSHandler{TTS: provider, Logger: discardLogger(), Voice: "nova"}

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", strings.NewReader(`{"text":"say this"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.String() != "mp3-amp3-b" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if provider.gotText != "say this" {
		t.Fatalf("text = %q", provider.gotText)
	}
}

func TestTTSHandlerProviderError(t *testing.T) {
	h := TTSHandler{TTS: &fakeTTS{openErr: errors.New("no voice")}, Logger: discardLogger()}
	req := httptest.NewRequest(http.MethodPost, "/v1/tts", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}
