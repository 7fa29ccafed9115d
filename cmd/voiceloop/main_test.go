package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/voiceloop/voiceloop/pkg/gateway/config"
	gatewayserver "github.com/voiceloop/voiceloop/pkg/gateway/server"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		buildProviders: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Providers, error) {
			t.Fatalf("buildProviders should not be called when config load fails")
			return gatewayserver.Providers{}, nil
		},
		newGateway: func(cfg config.Config, logger *slog.Logger, providers gatewayserver.Providers) *gatewayserver.Server {
			t.Fatalf("newGateway should not be called when config load fails")
			return nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}

func TestBuildProviders_WhisperAndOpenAITTS(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		OpenAIAPIKey: "sk-test",
		STTProvider:  config.STTWhisper,
		WhisperModel: "whisper-1",
		OpenAIModel:  "gpt-4o",
		TTSVoice:     "nova",
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	providers, err := buildProviders(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildProviders error: %v", err)
	}
	if providers.STT.Name() != "whisper" {
		t.Fatalf("stt=%q, want whisper", providers.STT.Name())
	}
	if providers.TTS.Name() != "openai-tts" {
		t.Fatalf("tts=%q, want openai-tts", providers.TTS.Name())
	}
}

func TestBuildProviders_DeepgramTTS(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		OpenAIAPIKey:   "sk-test",
		DeepgramAPIKey: "dg-test",
		UseDeepgramTTS: true,
		STTProvider:    config.STTWhisper,
		WhisperModel:   "whisper-1",
		OpenAIModel:    "gpt-4o",
		DeepgramVoice:  "aura-asteria-en",
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	providers, err := buildProviders(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildProviders error: %v", err)
	}
	if providers.TTS.Name() != "deepgram" {
		t.Fatalf("tts=%q, want deepgram", providers.TTS.Name())
	}
}
