package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/conversation"
	"github.com/voiceloop/voiceloop/pkg/core/types"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
	"github.com/voiceloop/voiceloop/pkg/gateway/config"
	"github.com/voiceloop/voiceloop/pkg/gateway/handlers"
	"github.com/voiceloop/voiceloop/pkg/gateway/live/sessions"
	"github.com/voiceloop/voiceloop/pkg/gateway/metrics"
	"github.com/voiceloop/voiceloop/pkg/gateway/mw"
)

// ChatEngine is the completion surface the gateway needs: one-shot for the
// REST endpoint, streaming for live sessions. The chat router satisfies it.
type ChatEngine interface {
	Complete(ctx context.Context, msgs []types.Message, opts chat.Options) (string, error)
	Stream(ctx context.Context, msgs []types.Message, opts chat.Options) (chat.TextStream, error)
}

// Providers bundles the upstream AI backends the server routes to.
type Providers struct {
	STT  stt.Provider
	Chat ChatEngine
	TTS  tts.Provider
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	providers Providers
	convos    *conversation.Registry
	tracker   *sessions.Tracker
	metrics   *metrics.Metrics
	promReg   *prometheus.Registry
}

func New(cfg config.Config, logger *slog.Logger, providers Providers) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	directive := cfg.SystemDirective
	if directive == "" {
		directive = conversation.DefaultDirective
	}

	promReg := prometheus.NewRegistry()
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		providers: providers,
		convos:    conversation.NewRegistry(directive),
		tracker:   sessions.NewTracker(),
		metrics:   metrics.New(promReg),
		promReg:   promReg,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	s.mux.Handle("/v1/stt", handlers.STTHandler{
		STT:          s.providers.STT,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		Language:     s.cfg.Language,
	})
	s.mux.Handle("/v1/chat", handlers.ChatHandler{
		Chat:         s.providers.Chat,
		Logger:       s.logger,
		Directive:    s.convos.Directive(),
		Temperature:  s.cfg.Temperature,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("/v1/tts", handlers.TTSHandler{
		TTS:          s.providers.TTS,
		Logger:       s.logger,
		Voice:        s.cfg.TTSVoice,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("/v1/ws/chat", handlers.WSChatHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Registry: s.convos,
		STT:      s.providers.STT,
		Chat:     s.providers.Chat,
		TTS:      s.providers.TTS,
		Sessions: s.tracker,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, s.metrics, h)
	h = mw.RequestID(h)
	return h
}

// SessionCount reports how many live sessions are registered.
func (s *Server) SessionCount() int {
	return s.tracker.Count()
}

// WaitSessions blocks until all live sessions have ended or ctx expires.
// It reports whether the tracker drained in time.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelSessions force-cancels every live session.
func (s *Server) CancelSessions() {
	s.tracker.CancelAll()
}
