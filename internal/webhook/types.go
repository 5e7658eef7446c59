package webhook

import (
	"context"

	"instagate/internal/dispatch"
	"instagate/internal/ingest"
	"instagate/internal/store"
)

// SignatureHeader is the header the platform signs deliveries with.
const SignatureHeader = "X-Hub-Signature-256"

// DefaultMaxBodySize caps delivery bodies at 1 MB.
const DefaultMaxBodySize = 1048576

// EventStore persists inbound events and reply outcomes.
type EventStore interface {
	// TryInsert reports whether this call inserted the event; false means
	// the event id was already stored (redelivery).
	TryInsert(ctx context.Context, ev ingest.InboundEvent, bodyHash string) (bool, error)
	RecordReply(ctx context.Context, eventID string, status store.ReplyStatus, errorDetail string) (*store.ReplyRecord, error)
}

// ReplyDispatcher issues the auto-reply for one newly stored event.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, ev ingest.InboundEvent) dispatch.Outcome
}

// Config holds webhook server configuration.
type Config struct {
	Listen      string
	VerifyToken string
	AppSecret   string
	MaxBodySize int64
}

// ErrorResponse is the JSON body for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
