package ws

import (
	"encoding/json"
	"testing"
)

func TestEncoderRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	in := []byte(`{"type":"chat","data":{"senderName":"alice","text":"hi","count":3}}`)
	frame, err := enc.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := enc.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var got, want map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decoded output is not json: %v", err)
	}
	_ = json.Unmarshal(in, &want)

	gotData := got["data"].(map[string]any)
	if got["type"] != "chat" || gotData["text"] != "hi" || gotData["count"] != float64(3) {
		t.Errorf("round trip mismatch: got %v, want %v", got, want)
	}
}

func TestEncoderRejectsNonObject(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode([]byte(`[1,2,3]`)); err == nil {
		t.Error("expected error encoding a non-object")
	}
	if _, err := enc.Decode([]byte("not zstd")); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestParseUpstreamMessage(t *testing.T) {
	msg, err := parseUpstreamMessageJSON([]byte(`{"type":"join-by-code","code":"X"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	join, ok := msg.(*joinRequest)
	if !ok || join.req.Code != "X" {
		t.Errorf("unexpected message %#v", msg)
	}

	msg, _ = parseUpstreamMessageJSON([]byte(`{"type":"join"}`))
	if join, ok := msg.(*joinRequest); !ok || !join.req.Generic() {
		t.Errorf("expected generic join, got %#v", msg)
	}

	if _, err := parseUpstreamMessageJSON([]byte(`{"type":"join-by-code"}`)); err == nil {
		t.Error("expected error for join-by-code without code")
	}
	if _, err := parseUpstreamMessageJSON([]byte(`{"type":"join-by-username"}`)); err == nil {
		t.Error("expected error for join-by-username without username")
	}
	if _, err := parseUpstreamMessageJSON([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid json")
	}
}
