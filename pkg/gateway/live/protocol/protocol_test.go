package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeClientControl(t *testing.T) {
	msg, err := DecodeClientControl([]byte(`{"type":"end"}`))
	if err != nil {
		t.Fatalf("DecodeClientControl: %v", err)
	}
	if msg.Type != ClientEnd {
		t.Fatalf("type = %q, want %q", msg.Type, ClientEnd)
	}
}

func TestDecodeClientControlMalformed(t *testing.T) {
	if _, err := DecodeClientControl([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestDecodeClientControlUnknownType(t *testing.T) {
	msg, err := DecodeClientControl([]byte(`{"type":"barge_in"}`))
	if err != nil {
		t.Fatalf("DecodeClientControl: %v", err)
	}
	if msg.Type != "barge_in" {
		t.Fatalf("type = %q", msg.Type)
	}
}

func TestServerMessageShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  any
		want string
	}{
		{"transcript", NewTranscript("hello"), `{"type":"transcript","text":"hello"}`},
		{"assistant text", NewAssistantText("Hi"), `{"type":"assistant_text","text":"Hi","partial":true}`},
		{"audio end", NewAudioEnd(), `{"type":"audio_end"}`},
		{"error", NewError(StageSTT, "transcription failed"), `{"type":"error","stage":"stt","detail":"transcription failed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if string(data) != tc.want {
				t.Fatalf("encoded = %s, want %s", data, tc.want)
			}
			// Every server frame must round-trip as an object with a type.
			var probe map[string]any
			if err := json.Unmarshal(data, &probe); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if probe["type"] == "" {
				t.Fatal("missing type field")
			}
		})
	}
}
