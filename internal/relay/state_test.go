package relay

import (
	"fmt"
	"testing"
	"time"
)

func TestStateStore_EmptySnapshot(t *testing.T) {
	s := NewStateStore()
	snap := s.Snapshot("nobody")

	if len(snap.ChatMessages) != 0 {
		t.Errorf("expected no chat messages, got %d", len(snap.ChatMessages))
	}
	if snap.ViewerCount != 0 {
		t.Errorf("expected viewer count 0, got %d", snap.ViewerCount)
	}
	if snap.BannerText != nil {
		t.Errorf("expected absent banner, got %q", *snap.BannerText)
	}
}

func TestStateStore_ChatHistoryBounded(t *testing.T) {
	s := NewStateStore()
	for i := 1; i <= 150; i++ {
		s.AppendChat("alice", ChatMessage{SenderName: "bob", Text: fmt.Sprintf("msg %d", i)})
	}

	snap := s.Snapshot("alice")
	if len(snap.ChatMessages) != ChatHistoryLimit {
		t.Fatalf("expected %d messages, got %d", ChatHistoryLimit, len(snap.ChatMessages))
	}
	if snap.ChatMessages[0].Text != "msg 51" {
		t.Errorf("expected first message 'msg 51', got %q", snap.ChatMessages[0].Text)
	}
	if snap.ChatMessages[99].Text != "msg 150" {
		t.Errorf("expected last message 'msg 150', got %q", snap.ChatMessages[99].Text)
	}
}

func TestStateStore_ScalarsAndLastUpdate(t *testing.T) {
	s := NewStateStore()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.SetViewerCount("alice", 42)
	s.SetBanner("alice", "giveaway at 9")

	snap := s.Snapshot("alice")
	if snap.ViewerCount != 42 {
		t.Errorf("expected viewer count 42, got %d", snap.ViewerCount)
	}
	if snap.BannerText == nil || *snap.BannerText != "giveaway at 9" {
		t.Errorf("unexpected banner: %v", snap.BannerText)
	}
	if !snap.LastUpdate.Equal(fixed) {
		t.Errorf("expected lastUpdate %v, got %v", fixed, snap.LastUpdate)
	}

	s.ClearBanner("alice")
	if s.Snapshot("alice").BannerText != nil {
		t.Error("expected banner cleared")
	}
}

func TestStateStore_ChatTimestampDefaultsToNow(t *testing.T) {
	s := NewStateStore()
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.AppendChat("alice", ChatMessage{SenderName: "bob", Text: "hi"})
	msg := s.Snapshot("alice").ChatMessages[0]
	if !msg.Timestamp.Equal(fixed) {
		t.Errorf("expected timestamp %v, got %v", fixed, msg.Timestamp)
	}
}

func TestStateStore_SnapshotIsACopy(t *testing.T) {
	s := NewStateStore()
	s.AppendChat("alice", ChatMessage{SenderName: "bob", Text: "hi"})
	s.SetBanner("alice", "one")

	snap := s.Snapshot("alice")
	snap.ChatMessages[0].Text = "changed"
	*snap.BannerText = "changed"

	again := s.Snapshot("alice")
	if again.ChatMessages[0].Text != "hi" {
		t.Error("snapshot chat messages alias the store")
	}
	if *again.BannerText != "one" {
		t.Error("snapshot banner aliases the store")
	}
}

func TestStateStore_ClearAndTenantIsolation(t *testing.T) {
	s := NewStateStore()
	s.AppendChat("alice", ChatMessage{SenderName: "bob", Text: "hi"})
	s.SetViewerCount("carol", 7)

	s.Clear("alice")

	if len(s.Snapshot("alice").ChatMessages) != 0 {
		t.Error("expected alice state cleared")
	}
	if s.Snapshot("carol").ViewerCount != 7 {
		t.Error("expected carol state untouched")
	}
}
