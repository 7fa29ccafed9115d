package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voiceloop/voiceloop/internal/dotenv"
	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
	"github.com/voiceloop/voiceloop/pkg/gateway/config"
	gatewayserver "github.com/voiceloop/voiceloop/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig     func() (config.Config, error)
	buildProviders func(context.Context, config.Config, *slog.Logger) (gatewayserver.Providers, error)
	newGateway     func(config.Config, *slog.Logger, gatewayserver.Providers) *gatewayserver.Server
	signalNotify   func(chan<- os.Signal, ...os.Signal)
	signalStop     func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:     config.LoadFromEnv,
		buildProviders: buildProviders,
		newGateway:     gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildSTT(ctx context.Context, cfg config.Config) (stt.Provider, error) {
	switch cfg.STTProvider {
	case config.STTGoogleSpeech:
		return stt.NewGoogleSpeech(ctx, cfg.Language)
	default:
		return stt.NewWhisper(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.WhisperModel)
	}
}

func buildChat(ctx context.Context, cfg config.Config, logger *slog.Logger) (*chat.Router, error) {
	var backends []chat.Backend

	openai, err := chat.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if err != nil {
		return nil, err
	}
	backends = append(backends, openai)

	if cfg.AnthropicAPIKey != "" {
		anthropic, err := chat.NewAnthropicBackend(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel)
		if err != nil {
			return nil, err
		}
		backends = append(backends, anthropic)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := chat.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		backends = append(backends, gemini)
	}

	return chat.NewRouter(logger, backends...)
}

func buildTTS(cfg config.Config) (tts.Provider, error) {
	if cfg.UseDeepgramTTS {
		return tts.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramSpeakURL, cfg.DeepgramVoice)
	}
	return tts.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, "tts-1", cfg.TTSVoice)
}

func buildProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Providers, error) {
	sttProvider, err := buildSTT(ctx, cfg)
	if err != nil {
		return gatewayserver.Providers{}, fmt.Errorf("build stt provider: %w", err)
	}
	chatRouter, err := buildChat(ctx, cfg, logger)
	if err != nil {
		return gatewayserver.Providers{}, fmt.Errorf("build chat router: %w", err)
	}
	ttsProvider, err := buildTTS(cfg)
	if err != nil {
		return gatewayserver.Providers{}, fmt.Errorf("build tts provider: %w", err)
	}
	return gatewayserver.Providers{
		STT:  sttProvider,
		Chat: chatRouter,
		TTS:  ttsProvider,
	}, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildProviders == nil {
		return errors.New("missing buildProviders dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := deps.buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gw := deps.newGateway(cfg, logger, providers)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting voice gateway",
		"addr", cfg.Addr,
		"stt_provider", string(cfg.STTProvider),
		"deepgram_tts", cfg.UseDeepgramTTS,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String(), "live_sessions", gw.SessionCount())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		gw.CancelSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("voice gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(stderr, "voiceloop: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voiceloop: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
