package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voiceloop/voiceloop/pkg/core/chat"
	"github.com/voiceloop/voiceloop/pkg/core/conversation"
	"github.com/voiceloop/voiceloop/pkg/core/types"
	"github.com/voiceloop/voiceloop/pkg/gateway/config"
	"github.com/voiceloop/voiceloop/pkg/gateway/live/sessions"
)

type fakeStreamer struct {
	fragments []string
}

func (f *fakeStreamer) Stream(ctx context.Context, msgs []types.Message, opts chat.Options) (chat.TextStream, error) {
	return &scriptedStream{fragments: append([]string(nil), f.fragments...)}, nil
}

type scriptedStream struct {
	fragments []string
}

func (s *scriptedStream) Next() (string, error) {
	if len(s.fragments) == 0 {
		return "", io.EOF
	}
	frag := s.fragments[0]
	s.fragments = s.fragments[1:]
	return frag, nil
}

func (s *scriptedStream) Close() error { return nil }

func wsTestConfig() config.Config {
	return config.Config{
		WSPingInterval:    time.Hour,
		WSWriteTimeout:    time.Second,
		WSOutboundQueue:   64,
		WSMaxFrameBytes:   1 << 20,
		MaxUtteranceBytes: 1 << 20,
		HandshakeTimeout:  time.Second,
		Temperature:       0.7,
	}
}

func TestWSChatHandlerFullTurn(t *testing.T) {
	registry := conversation.NewRegistry("be kind")
	h := WSChatHandler{
		Config:   wsTestConfig(),
		Logger:   discardLogger(),
		Registry: registry,
		STT:      &fakeSTT{text: "hello"},
		Chat:     &fakeStreamer{fragments: []string{"Hi", " there"}},
		TTS:      &fakeTTS{chunks: [][]byte{{0xA0}, {0xA1}}},
		Sessions: sessions.NewTracker(),
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session_id=s_ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end"}`)); err != nil {
		t.Fatal(err)
	}

	type frame struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Partial bool   `json:"partial"`
	}
	var textFrames []frame
	var binaryCount int
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (frames so far %+v)", err, textFrames)
		}
		if msgType == websocket.BinaryMessage {
			binaryCount++
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		textFrames = append(textFrames, f)
		if f.Type == "audio_end" {
			break
		}
	}

	want := []frame{
		{Type: "transcript", Text: "hello"},
		{Type: "assistant_text", Text: "Hi", Partial: true},
		{Type: "assistant_text", Text: " there", Partial: true},
		{Type: "assistant_text", Text: "Hi there", Partial: false},
		{Type: "audio_end"},
	}
	if len(textFrames) != len(want) {
		t.Fatalf("frames = %+v", textFrames)
	}
	for i := range want {
		if textFrames[i] != want[i] {
			t.Fatalf("frame %d = %+v, want %+v", i, textFrames[i], want[i])
		}
	}
	if binaryCount != 2 {
		t.Fatalf("binary frames = %d, want 2", binaryCount)
	}

	msgs := registry.GetOrCreate("s_ws").Messages()
	if len(msgs) != 3 || msgs[2].Content != "Hi there" {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestWSChatHandlerRejectsNonGet(t *testing.T) {
	h := WSChatHandler{Config: wsTestConfig(), Logger: discardLogger(), Registry: conversation.NewRegistry("")}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/ws/chat", nil))
	if rec.Code != 405 {
		t.Fatalf("status = %d", rec.Code)
	}
}
