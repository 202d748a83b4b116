package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventChat        EventType = "chat"
	EventGift        EventType = "gift"
	EventFollow      EventType = "follow"
	EventLike        EventType = "like"
	EventShare       EventType = "share"
	EventViewerCount EventType = "viewer-count"
	EventBanner      EventType = "banner"
	EventStreamEnd   EventType = "stream-end"

	// Control messages produced by the relay itself.
	EventConnected EventType = "connected"
	EventStateSync EventType = "state-sync"
	EventError     EventType = "error"
)

var ingestTypes = map[EventType]bool{
	EventChat:        true,
	EventGift:        true,
	EventFollow:      true,
	EventLike:        true,
	EventShare:       true,
	EventViewerCount: true,
	EventBanner:      true,
	EventStreamEnd:   true,
}

// ParseEventType validates a tag received from a producer.
// Control message types are not accepted from producers.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !ingestTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Event is the unit of delivery. The broadcaster never inspects Data.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ChatMessage is one entry of a tenant's chat history.
type ChatMessage struct {
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConnectedData is the payload of a connected acknowledgement.
type ConnectedData struct {
	Tenant string `json:"tenant,omitempty"`
	Code   string `json:"code,omitempty"`
}

// ErrorData is the payload of an error message sent to a client.
type ErrorData struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// StateSyncData is the replay payload sent right after a tenant join.
type StateSyncData struct {
	ChatMessages []ChatMessage `json:"chatMessages"`
	ViewerCount  int           `json:"viewerCount"`
	BannerText   *string       `json:"bannerText"`
}

// NewConnected builds the join acknowledgement.
func NewConnected(tenant, code string) Event {
	return Event{Type: EventConnected, Data: ConnectedData{Tenant: tenant, Code: code}}
}

// NewStateSync builds a state-sync message from a snapshot.
func NewStateSync(s Snapshot) Event {
	return Event{Type: EventStateSync, Data: StateSyncData{
		ChatMessages: s.ChatMessages,
		ViewerCount:  s.ViewerCount,
		BannerText:   s.BannerText,
	}}
}

// NewError builds an error message naming the reason.
func NewError(reason, message string) Event {
	return Event{Type: EventError, Data: ErrorData{Reason: reason, Message: message}}
}

// Marshal encodes the event as its JSON wire envelope.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}
