// Package conversation keeps per-session message history and turn counters.
//
// The registry is purely in-memory: entries live for the lifetime of the
// process, there is no eviction, and nothing survives a restart or balances
// across processes. Sessions are independent, so the only shared state is
// the map itself.
package conversation

import (
	"sync"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

// Registry maps session identifiers to their conversation state. It is safe
// for concurrent use; each individual session is expected to be driven by the
// single task owning its connection.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	directive string
}

// NewRegistry creates a registry seeding new sessions with the given system
// directive. An empty directive falls back to DefaultDirective.
func NewRegistry(directive string) *Registry {
	if directive == "" {
		directive = DefaultDirective
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		directive: directive,
	}
}

// GetOrCreate returns the session for id, creating it with the system
// directive as the sole initial history entry if absent.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{
		id:       id,
		messages: []types.Message{{Role: types.RoleSystem, Content: r.directive}},
	}
	r.sessions[id] = s
	return s
}

// Directive returns the system directive new sessions are seeded with.
func (r *Registry) Directive() string {
	return r.directive
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Session holds one conversation: an append-only message history whose first
// entry is always the system directive, and a monotonically increasing turn
// counter.
type Session struct {
	mu       sync.Mutex
	id       string
	messages []types.Message
	turns    int
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Append adds a message to the history.
func (s *Session) Append(role types.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, types.Message{Role: role, Content: content})
}

// Messages returns a snapshot of the history in order.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Turn returns the current turn counter.
func (s *Session) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// AdvanceTurn increments the turn counter once a turn has run its course.
func (s *Session) AdvanceTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
}
