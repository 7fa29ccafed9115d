package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/voiceloop/voiceloop/pkg/core/types"
)

func TestGetOrCreateSeedsDirectiveOnce(t *testing.T) {
	r := NewRegistry("be brief")

	s := r.GetOrCreate("s_1")
	again := r.GetOrCreate("s_1")
	if s != again {
		t.Fatalf("GetOrCreate returned a different session for the same id")
	}

	s.Append(types.RoleUser, "hello")
	s.Append(types.RoleAssistant, "hi")
	s.Append(types.RoleUser, "bye")

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(msgs))
	}
	if msgs[0].Role != types.RoleSystem || msgs[0].Content != "be brief" {
		t.Fatalf("first message = %+v, want system directive", msgs[0])
	}
	for _, m := range msgs[1:] {
		if m.Role == types.RoleSystem {
			t.Fatalf("directive appended more than once: %+v", msgs)
		}
	}
}

func TestEmptyDirectiveFallsBack(t *testing.T) {
	r := NewRegistry("")
	msgs := r.GetOrCreate("s_1").Messages()
	if msgs[0].Content != DefaultDirective {
		t.Fatalf("expected default directive as first message")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry("sys")
	a := r.GetOrCreate("a")
	b := r.GetOrCreate("b")

	a.Append(types.RoleUser, "from a")
	a.AdvanceTurn()
	b.Append(types.RoleUser, "from b")

	if got := a.Turn(); got != 1 {
		t.Fatalf("a.Turn() = %d, want 1", got)
	}
	if got := b.Turn(); got != 0 {
		t.Fatalf("b.Turn() = %d, want 0", got)
	}
	if msgs := b.Messages(); msgs[1].Content != "from b" {
		t.Fatalf("b history = %+v", msgs)
	}
}

func TestConcurrentDistinctSessions(t *testing.T) {
	r := NewRegistry("sys")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s_%d", i)
			s := r.GetOrCreate(id)
			for turn := 0; turn < 10; turn++ {
				s.Append(types.RoleUser, fmt.Sprintf("%s turn %d", id, turn))
				s.AdvanceTurn()
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", r.Len())
	}
	for i := 0; i < 16; i++ {
		id := fmt.Sprintf("s_%d", i)
		s := r.GetOrCreate(id)
		if s.Turn() != 10 {
			t.Fatalf("%s turn = %d, want 10", id, s.Turn())
		}
		msgs := s.Messages()
		if len(msgs) != 11 {
			t.Fatalf("%s len(messages) = %d, want 11", id, len(msgs))
		}
		for j, m := range msgs[1:] {
			want := fmt.Sprintf("%s turn %d", id, j)
			if m.Content != want {
				t.Fatalf("%s message %d = %q, want %q", id, j, m.Content, want)
			}
		}
	}
}
