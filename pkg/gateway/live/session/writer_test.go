package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error { return nil }

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_WritesInQueueOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan outboundFrame, 4)
	frames <- outboundFrame{textPayload: []byte(`{"type":"transcript","text":"hello"}`)}
	frames <- outboundFrame{binaryPayload: []byte{0x01, 0x02}}
	frames <- outboundFrame{textPayload: []byte(`{"type":"audio_end"}`)}
	close(frames)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:     ws,
		ctx:    ctx,
		cfg:    Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		frames: frames,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d: %+v", len(writes), writes)
	}
	if writes[0].messageType != websocket.TextMessage || !strings.Contains(writes[0].data, `"transcript"`) {
		t.Fatalf("first write = %+v", writes[0])
	}
	if writes[1].messageType != websocket.BinaryMessage {
		t.Fatalf("second write type = %d, want BinaryMessage", writes[1].messageType)
	}
	if !strings.Contains(writes[2].data, `"audio_end"`) {
		t.Fatalf("third write = %+v", writes[2])
	}
}

func TestOutboundWriter_FlushesQueuedFramesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	frames := make(chan outboundFrame, 2)
	frames <- outboundFrame{textPayload: []byte(`{"type":"audio_end"}`)}
	close(frames)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:     ws,
		ctx:    ctx,
		cfg:    Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		frames: frames,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 || !strings.Contains(writes[0].data, `"audio_end"`) {
		t.Fatalf("expected audio_end to flush on shutdown, writes=%+v", writes)
	}
}

func TestOutboundWriter_SendsCloseFrameOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	frames := make(chan outboundFrame)
	close(frames)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:     ws,
		ctx:    ctx,
		cfg:    Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		frames: frames,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 1 || writes[0].messageType != websocket.CloseMessage {
		t.Fatalf("expected a close frame, writes=%+v", writes)
	}
}
