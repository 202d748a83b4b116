package relay

import (
	"fmt"
	"testing"
)

func TestLogStore_ReadReturnsNewestOldestFirst(t *testing.T) {
	l := NewLogStore()
	for i := 1; i <= 5; i++ {
		l.Append("alice", "event", fmt.Sprintf("entry %d", i), nil)
	}

	got := l.Read("alice", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Message != "entry 3" || got[2].Message != "entry 5" {
		t.Errorf("unexpected order: %q .. %q", got[0].Message, got[2].Message)
	}
}

func TestLogStore_EvictsPastCapacity(t *testing.T) {
	l := NewLogStore()
	for i := 0; i < LogHistoryLimit+25; i++ {
		l.Append("alice", "event", fmt.Sprintf("entry %d", i), map[string]any{"i": i})
	}

	got := l.Read("alice", 0)
	if len(got) != LogHistoryLimit {
		t.Fatalf("expected %d entries, got %d", LogHistoryLimit, len(got))
	}
	if got[0].Message != "entry 25" {
		t.Errorf("expected oldest retained 'entry 25', got %q", got[0].Message)
	}
}

func TestLogStore_ClearAndUnknownTenant(t *testing.T) {
	l := NewLogStore()
	l.Append("alice", "connection", "joined", nil)
	l.Clear("alice")

	if got := l.Read("alice", 10); len(got) != 0 {
		t.Errorf("expected cleared log, got %d entries", len(got))
	}
	if got := l.Read("unknown", 10); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}

	l.Append("alice", "connection", "rejoined", nil)
	if got := l.Read("alice", 10); len(got) != 1 {
		t.Errorf("expected append after clear to work, got %d", len(got))
	}
}
