package session

import (
	"fmt"

	"github.com/voiceloop/voiceloop/pkg/core"
)

// utteranceAccumulator buffers binary audio frames until the client signals
// the end of an utterance. Overflow marks the utterance bad but keeps
// accepting (and discarding) frames so the capture stays aligned with the
// client's end signal.
type utteranceAccumulator struct {
	maxBytes int64
	buf      []byte
	total    int64
	overflow bool
}

func newUtteranceAccumulator(maxBytes int64) *utteranceAccumulator {
	return &utteranceAccumulator{maxBytes: maxBytes}
}

// Append adds one audio frame to the current utterance.
func (a *utteranceAccumulator) Append(frame []byte) {
	a.total += int64(len(frame))
	if a.overflow {
		return
	}
	if a.maxBytes > 0 && a.total > a.maxBytes {
		a.overflow = true
		a.buf = nil
		return
	}
	a.buf = append(a.buf, frame...)
}

// Len returns the number of buffered bytes.
func (a *utteranceAccumulator) Len() int { return len(a.buf) }

// Finalize returns the captured utterance and resets the accumulator for
// the next turn.
func (a *utteranceAccumulator) Finalize() ([]byte, error) {
	defer a.reset()
	if a.overflow {
		return nil, core.NewResourceExceededError(
			fmt.Sprintf("utterance exceeded %d bytes", a.maxBytes))
	}
	audio := a.buf
	return audio, nil
}

func (a *utteranceAccumulator) reset() {
	a.buf = nil
	a.total = 0
	a.overflow = false
}
