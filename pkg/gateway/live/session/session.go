// Package session runs one live voice conversation over a websocket.
//
// A session is a loop of turns: capture one utterance, transcribe it, stream
// a chat completion back as text, then stream synthesized audio. Stage
// failures abandon the turn and the loop resumes listening; only transport
// loss or an internal fault ends the session.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voiceloop/voiceloop/pkg/core"
	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/conversation"
	"github.com/voiceloop/voiceloop/pkg/core/types"
	"github.com/voiceloop/voiceloop/pkg/core/voice/stt"
	"github.com/voiceloop/voiceloop/pkg/core/voice/tts"
	"github.com/voiceloop/voiceloop/pkg/gateway/live/protocol"
	"github.com/voiceloop/voiceloop/pkg/gateway/metrics"
)

// CompletionStreamer opens streaming chat completions. The router satisfies
// this; tests substitute fakes.
type CompletionStreamer interface {
	Stream(ctx context.Context, msgs []types.Message, opts chat.Options) (chat.TextStream, error)
}

type wsConn interface {
	wsWriter
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
}

// Dependencies are the collaborators one session needs.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	STT     stt.Provider
	Chat    CompletionStreamer
	TTS     tts.Provider
	Convo   *conversation.Session
}

// Config tunes one session.
type Config struct {
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	MaxFrameBytes     int64
	MaxUtteranceBytes int64
	OutboundQueue     int
	TurnTimeout       time.Duration
	Temperature       float64
	Language          string
	AudioFormat       string
	Voice             string
}

type inboundKind int

const (
	inboundAudio inboundKind = iota
	inboundEnd
	inboundClosed
)

type inboundFrame struct {
	kind inboundKind
	data []byte
	err  error
}

// Session drives the turn loop for one connection.
type Session struct {
	ws       wsConn
	deps     Dependencies
	cfg      Config
	logger   *slog.Logger
	outbound chan outboundFrame
	inbound  chan inboundFrame
	acc      *utteranceAccumulator
}

// New validates the wiring and builds a session.
func New(ws wsConn, deps Dependencies, cfg Config) (*Session, error) {
	if ws == nil {
		return nil, errors.New("websocket connection is required")
	}
	if deps.STT == nil || deps.Chat == nil || deps.TTS == nil || deps.Convo == nil {
		return nil, errors.New("stt, chat, tts and conversation dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.OutboundQueue
	if queue <= 0 {
		queue = 64
	}
	return &Session{
		ws:       ws,
		deps:     deps,
		cfg:      cfg,
		logger:   logger.With("session_id", deps.Convo.ID()),
		outbound: make(chan outboundFrame, queue),
		inbound:  make(chan inboundFrame, 64),
		acc:      newUtteranceAccumulator(cfg.MaxUtteranceBytes),
	}, nil
}

// Run executes the turn loop until the client disconnects, the context is
// canceled, or an internal fault occurs.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionOpened()
		defer func() {
			s.deps.Metrics.SessionClosed(time.Since(start).Seconds())
		}()
	}

	writerDone := make(chan struct{})
	writer := &outboundWriter{ws: s.ws, ctx: ctx, cfg: s.cfg, frames: s.outbound}
	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil {
			s.logger.Warn("outbound writer stopped", "error", err)
		}
		cancel()
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	go s.readLoop(ctx)

	for {
		audio, err := s.collectUtterance(ctx)
		if err != nil {
			var cerr *core.Error
			if errors.As(err, &cerr) && cerr.Recoverable() {
				s.logger.Warn("utterance abandoned", "error", err)
				s.countFailure(protocol.StageSTT)
				s.reportFailure(ctx, protocol.StageSTT, cerr.Detail())
				continue
			}
			if errors.As(err, &cerr) && cerr.Kind == core.KindTransportClosed {
				s.logger.Info("client disconnected")
				return nil
			}
			return err
		}
		if err := s.runTurn(ctx, audio); err != nil {
			return err
		}
	}
}

// readLoop pumps the socket into the inbound channel. Malformed and unknown
// control frames are dropped without advancing turn state.
func (s *Session) readLoop(ctx context.Context) {
	if s.cfg.MaxFrameBytes > 0 {
		s.ws.SetReadLimit(s.cfg.MaxFrameBytes)
	}
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		msgType, data, err := s.ws.ReadMessage()
		if err != nil {
			s.deliver(ctx, inboundFrame{kind: inboundClosed, err: err})
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if !s.deliver(ctx, inboundFrame{kind: inboundAudio, data: data}) {
				return
			}
		case websocket.TextMessage:
			msg, err := protocol.DecodeClientControl(data)
			if err != nil {
				continue
			}
			if msg.Type != protocol.ClientEnd {
				continue
			}
			if !s.deliver(ctx, inboundFrame{kind: inboundEnd}) {
				return
			}
		}
	}
}

func (s *Session) deliver(ctx context.Context, frame inboundFrame) bool {
	select {
	case s.inbound <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// collectUtterance accumulates audio frames until the end signal, then
// finalizes the buffer. A capped-out utterance keeps draining until the end
// signal so only that turn is lost.
func (s *Session) collectUtterance(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, core.NewTransportClosedError(ctx.Err())
		case frame, ok := <-s.inbound:
			if !ok {
				return nil, core.NewTransportClosedError(nil)
			}
			switch frame.kind {
			case inboundAudio:
				s.acc.Append(frame.data)
			case inboundEnd:
				return s.acc.Finalize()
			case inboundClosed:
				if isUnexpectedClose(frame.err) {
					s.logger.Warn("read failed", "error", frame.err)
				}
				return nil, core.NewTransportClosedError(frame.err)
			}
		}
	}
}

func isUnexpectedClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) {
		return false
	}
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// runTurn drives one utterance through transcription, completion and
// synthesis. Stage failures are contained: the turn is abandoned and nil is
// returned so the loop keeps listening.
func (s *Session) runTurn(ctx context.Context, audio []byte) error {
	turnStart := time.Now()
	turn := s.deps.Convo.Turn()
	s.logger.Info("utterance received", "turn", turn, "bytes", len(audio))
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveUtterance(len(audio))
	}

	turnCtx := ctx
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}

	transcript, err := s.transcribe(turnCtx, audio)
	if err != nil {
		cerr := core.NewTranscriptionError(err)
		s.logger.Warn("transcription failed", "turn", turn, "error", err)
		s.countFailure(protocol.StageSTT)
		s.reportFailure(ctx, protocol.StageSTT, cerr.Detail())
		return nil
	}
	if !s.sendJSON(ctx, protocol.NewTranscript(transcript)) {
		return nil
	}
	s.deps.Convo.Append(types.RoleUser, transcript)

	assistantText, err := s.streamCompletion(turnCtx, ctx)
	if err != nil {
		cerr := core.NewCompletionError(err)
		s.logger.Warn("completion failed", "turn", turn, "error", err)
		s.countFailure(protocol.StageChat)
		s.reportFailure(ctx, protocol.StageChat, cerr.Detail())
		return nil
	}
	s.deps.Convo.Append(types.RoleAssistant, assistantText)

	synthesisOK := s.streamSynthesis(turnCtx, ctx, assistantText)

	s.deps.Convo.AdvanceTurn()
	if s.deps.Metrics != nil && synthesisOK {
		s.deps.Metrics.TurnCompleted(time.Since(turnStart).Seconds())
	}
	return nil
}

func (s *Session) transcribe(ctx context.Context, audio []byte) (string, error) {
	start := time.Now()
	text, err := s.deps.STT.Transcribe(ctx, audio, stt.TranscribeOptions{
		Language: s.cfg.Language,
		Format:   s.cfg.AudioFormat,
	})
	s.observeStage(protocol.StageSTT, start)
	return text, err
}

// streamCompletion forwards non-empty fragments as partial updates while
// accumulating the full reply, then sends the full text as the single final
// update. On failure nothing is persisted and no final update is sent.
func (s *Session) streamCompletion(ctx, sendCtx context.Context) (string, error) {
	start := time.Now()
	defer s.observeStage(protocol.StageChat, start)

	stream, err := s.deps.Chat.Stream(ctx, s.deps.Convo.Messages(), chat.Options{
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		fragment, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if fragment == "" {
			continue
		}
		full += fragment
		if !s.sendJSON(sendCtx, protocol.NewAssistantText(fragment)) {
			return "", sendCtx.Err()
		}
	}

	final := protocol.AssistantText{Type: protocol.ServerAssistantText, Text: full, Partial: false}
	if !s.sendJSON(sendCtx, final) {
		return "", sendCtx.Err()
	}
	return full, nil
}

// streamSynthesis relays audio chunks and always emits exactly one audio
// end marker, even when synthesis fails or produces nothing. Synthesis
// errors are logged rather than surfaced; the client just gets a silent
// reply.
func (s *Session) streamSynthesis(ctx, sendCtx context.Context, text string) bool {
	start := time.Now()
	defer s.observeStage(protocol.StageTTS, start)
	defer s.sendJSON(sendCtx, protocol.NewAudioEnd())

	if text == "" {
		return true
	}

	stream, err := s.deps.TTS.SynthesizeStream(ctx, text, tts.SynthesizeOptions{
		Voice: s.cfg.Voice,
	})
	if err != nil {
		s.logger.Warn("synthesis failed", "error", err)
		s.countFailure(protocol.StageTTS)
		return false
	}
	defer stream.Close()

	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if !s.sendBinary(sendCtx, chunk) {
			return false
		}
	}
	if err := stream.Err(); err != nil {
		s.logger.Warn("synthesis ended early", "error", err)
		s.countFailure(protocol.StageTTS)
		return false
	}
	return true
}

func (s *Session) reportFailure(ctx context.Context, stage, detail string) {
	s.sendJSON(ctx, protocol.NewError(stage, detail))
}

func (s *Session) countFailure(stage string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.TurnFailed(stage)
	}
}

func (s *Session) observeStage(stage string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveStage(stage, time.Since(start).Seconds())
	}
}

func (s *Session) sendJSON(ctx context.Context, msg any) bool {
	payload, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encode outbound message", "error", err)
		return false
	}
	return s.enqueue(ctx, outboundFrame{textPayload: payload})
}

func (s *Session) sendBinary(ctx context.Context, data []byte) bool {
	return s.enqueue(ctx, outboundFrame{binaryPayload: data})
}

func (s *Session) enqueue(ctx context.Context, frame outboundFrame) bool {
	select {
	case s.outbound <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}
