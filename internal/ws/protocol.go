package ws

import (
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

const (
	subprotocolJSON     = "json.overlay.v1"
	subprotocolProtobuf = "protobuf.overlay.v1"

	protocolJSON     = "json"
	protocolProtobuf = "protobuf"
)

// Inbound message types.
const (
	msgJoinByCode     = "join-by-code"
	msgJoinByUsername = "join-by-username"
	msgJoin           = "join"
	msgEvent          = "event"
	msgPing           = "ping"
)

// Error reasons specific to the duplex transport.
const (
	reasonBadMessage = "bad-message"
	reasonBadEvent   = "bad-event"
	reasonNotJoined  = "not-joined"
)

// Upstream message types for internal routing
type (
	joinRequest struct {
		req relay.JoinRequest
	}
	eventRequest struct {
		eventType string
		data      json.RawMessage
	}
	pingRequest struct{}
)

// upstreamEnvelope is the JSON shape of every inbound message. For the
// protobuf subprotocol it is carried as a google.protobuf.Struct.
type upstreamEnvelope struct {
	Type     string          `json:"type"`
	Code     string          `json:"code,omitempty"`
	Username string          `json:"username,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// parseUpstreamMessageJSON parses a JSON-encoded upstream message.
func parseUpstreamMessageJSON(data []byte) (any, error) {
	var msg upstreamEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal JSON upstream message: %w", err)
	}

	switch msg.Type {
	case msgJoinByCode:
		if msg.Code == "" {
			return nil, fmt.Errorf("%s requires a code", msgJoinByCode)
		}
		return &joinRequest{req: relay.JoinRequest{Code: msg.Code}}, nil

	case msgJoinByUsername:
		if msg.Username == "" {
			return nil, fmt.Errorf("%s requires a username", msgJoinByUsername)
		}
		return &joinRequest{req: relay.JoinRequest{Tenant: msg.Username}}, nil

	case msgJoin:
		return &joinRequest{}, nil

	case msgEvent:
		return &eventRequest{eventType: msg.Event, data: msg.Data}, nil

	case msgPing:
		return &pingRequest{}, nil

	default:
		return nil, fmt.Errorf("unknown JSON message type: %q", msg.Type)
	}
}

// buildPongMessageJSON creates a JSON pong message.
func buildPongMessageJSON() []byte {
	data, _ := json.Marshal(map[string]string{"type": "pong"})
	return data
}
