// Package protocol defines the wire messages of the live voice socket.
//
// Clients send audio as binary frames and a JSON control frame
// {"type":"end"} to mark the end of an utterance. The server answers with
// JSON text frames for transcripts, assistant text and errors, binary
// frames for synthesized audio, and {"type":"audio_end"} exactly once per
// utterance to close the audio portion of the reply.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client control message types.
const (
	ClientEnd = "end"
)

// Server message types.
const (
	ServerTranscript    = "transcript"
	ServerAssistantText = "assistant_text"
	ServerAudioEnd      = "audio_end"
	ServerError         = "error"
)

// Pipeline stages reported in error messages.
const (
	StageSTT  = "stt"
	StageChat = "chat"
	StageTTS  = "tts"
)

// ClientControl is a decoded client JSON frame.
type ClientControl struct {
	Type string `json:"type"`
}

// DecodeClientControl parses a client text frame. Unknown types decode
// without error; callers decide whether to ignore them.
func DecodeClientControl(data []byte) (ClientControl, error) {
	var msg ClientControl
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientControl{}, fmt.Errorf("malformed control frame: %w", err)
	}
	return msg, nil
}

// Transcript carries the recognized text of the user's utterance.
type Transcript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AssistantText carries one partial fragment of the assistant reply.
type AssistantText struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}

// AudioEnd marks the end of the audio reply for the current utterance.
type AudioEnd struct {
	Type string `json:"type"`
}

// ErrorMessage reports a recoverable per-turn failure. The connection
// stays open; the client may simply speak again.
type ErrorMessage struct {
	Type   string `json:"type"`
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// NewTranscript builds a transcript message.
func NewTranscript(text string) Transcript {
	return Transcript{Type: ServerTranscript, Text: text}
}

// NewAssistantText builds a partial assistant text message.
func NewAssistantText(text string) AssistantText {
	return AssistantText{Type: ServerAssistantText, Text: text, Partial: true}
}

// NewAudioEnd builds an audio end marker.
func NewAudioEnd() AudioEnd {
	return AudioEnd{Type: ServerAudioEnd}
}

// NewError builds an error message for the given stage.
func NewError(stage, detail string) ErrorMessage {
	return ErrorMessage{Type: ServerError, Stage: stage, Detail: detail}
}

// Encode marshals a server message to a JSON text frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode server message: %w", err)
	}
	return data, nil
}
