package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voiceloop/voiceloop/pkg/core/conversation"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
	"github.com/voiceloop/voiceloop/pkg/gateway/config"
	"github.com/voiceloop/voiceloop/pkg/gateway/live/session"
	"github.com/voiceloop/voiceloop/pkg/gateway/live/sessions"
	"github.com/voiceloop/voiceloop/pkg/gateway/metrics"
)

// WSChatHandler upgrades /v1/ws/chat connections and runs the voice turn
// loop on them.
type WSChatHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Registry *conversation.Registry
	STT      stt.Provider
	Chat     session.CompletionStreamer
	TTS      tts.Provider
	Sessions *sessions.Tracker
}

func (h WSChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.originAllowed(r) {
		writeError(w, http.StatusForbidden, "origin is not allowed")
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSReadTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.Config.WSReadTimeout))
		})
	}

	logger := h.logger().With("session_id", sessionID)

	s, err := session.New(conn, session.Dependencies{
		Logger:  h.logger(),
		Metrics: h.Metrics,
		STT:     h.STT,
		Chat:    h.Chat,
		TTS:     h.TTS,
		Convo:   h.Registry.GetOrCreate(sessionID),
	}, session.Config{
		PingInterval:      h.Config.WSPingInterval,
		WriteTimeout:      h.Config.WSWriteTimeout,
		ReadTimeout:       h.Config.WSReadTimeout,
		MaxFrameBytes:     h.Config.WSMaxFrameBytes,
		MaxUtteranceBytes: h.Config.MaxUtteranceBytes,
		OutboundQueue:     h.Config.WSOutboundQueue,
		TurnTimeout:       h.Config.TurnTimeout,
		Temperature:       h.Config.Temperature,
		Language:          h.Config.Language,
		Voice:             h.Config.TTSVoice,
	})
	if err != nil {
		logger.Error("session setup failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.Sessions != nil {
		unregister := h.Sessions.Register(uuid.NewString(), sessions.Handle{Cancel: cancel})
		defer unregister()
	}

	if err := s.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
	}
}

func (h WSChatHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h WSChatHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
