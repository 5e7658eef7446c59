package ingest

import "encoding/json"

// EventType classifies where an inbound event came from inside the payload.
type EventType string

const (
	// EventTypeMessage is a direct message from entry[].messaging[].
	EventTypeMessage EventType = "message"
	// EventTypeComment is a media comment from entry[].changes[].
	EventTypeComment EventType = "comment"
)

// InboundEvent is one normalized platform event. EventID is the dedupe key:
// the platform may redeliver the same event, and the identifier is globally
// unique per delivery.
type InboundEvent struct {
	EventID     string
	Type        EventType
	SenderID    string
	RecipientID string
	// Text is the message body; empty for non-text events such as
	// reactions or attachment-only messages.
	Text string
	// Timestamp is the delivery time reported by the platform, in epoch
	// milliseconds.
	Timestamp int64
	// Raw is the original sub-event fragment, retained for auditing.
	Raw json.RawMessage
}

// HasText reports whether the event carries a message body. Only events with
// text receive an auto-reply.
func (e InboundEvent) HasText() bool {
	return e.Text != ""
}
