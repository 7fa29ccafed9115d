// Package core defines the error taxonomy shared by the pipeline stages.
package core

import "fmt"

// Stage names a pipeline stage as reported to clients.
type Stage string

const (
	StageTranscription Stage = "stt"
	StageCompletion    Stage = "chat"
	StageSynthesis     Stage = "tts"
)

// ErrorKind categorizes pipeline errors.
type ErrorKind string

const (
	KindTranscriptionFailed ErrorKind = "transcription_failed"
	KindCompletionFailed    ErrorKind = "completion_failed"
	KindSynthesisFailed     ErrorKind = "synthesis_failed"
	KindResourceExceeded    ErrorKind = "resource_exceeded"
	KindTransportClosed     ErrorKind = "transport_closed"
	KindInternal            ErrorKind = "internal"
)

// Error wraps a provider or transport failure before it crosses back into
// the orchestrator's state machine. No raw provider error reaches the
// transport layer.
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Recoverable reports whether the session survives this error. Recoverable
// errors abandon the current turn only.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindTranscriptionFailed, KindCompletionFailed, KindSynthesisFailed, KindResourceExceeded:
		return true
	default:
		return false
	}
}

// Detail is the client-visible description: stage context without internal
// stack detail. The cause, which can carry upstream API response excerpts,
// stays in the logs.
func (e *Error) Detail() string {
	return e.Message
}

// NewTranscriptionError wraps a speech-to-text failure.
func NewTranscriptionError(cause error) *Error {
	return &Error{Kind: KindTranscriptionFailed, Stage: StageTranscription, Message: "transcription failed", cause: cause}
}

// NewCompletionError wraps a chat completion failure.
func NewCompletionError(cause error) *Error {
	return &Error{Kind: KindCompletionFailed, Stage: StageCompletion, Message: "completion failed", cause: cause}
}

// NewSynthesisError wraps a text-to-speech failure.
func NewSynthesisError(cause error) *Error {
	return &Error{Kind: KindSynthesisFailed, Stage: StageSynthesis, Message: "synthesis failed", cause: cause}
}

// NewResourceExceededError reports a buffer cap violation for one turn.
func NewResourceExceededError(message string) *Error {
	return &Error{Kind: KindResourceExceeded, Stage: StageTranscription, Message: message}
}

// NewTransportClosedError marks a clean client-side close.
func NewTransportClosedError(cause error) *Error {
	return &Error{Kind: KindTransportClosed, Message: "transport closed", cause: cause}
}

// NewInternalError marks an unexpected fault that tears the session down.
func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}
