package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/voicekit/support-bot/internal/host"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventClientConnected   EventType = "client_connected"
	EventClientMoved       EventType = "client_moved"
	EventSupporterPresence EventType = "supporter_presence"
)

// Event represents a host event routed through the dispatcher.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New builds a stamped event ready for publication.
func New(t EventType, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// ClientConnectedPayload payload.
type ClientConnectedPayload struct {
	Client host.Client `json:"client"`
}

// ClientMovedPayload payload.
type ClientMovedPayload struct {
	Client      host.Client `json:"client"`
	FromChannel uint64      `json:"from_channel"`
	ToChannel   uint64      `json:"to_channel"`
}

// SupporterPresencePayload payload.
type SupporterPresencePayload struct {
	UID    string `json:"uid"`
	Online bool   `json:"online"`
}
