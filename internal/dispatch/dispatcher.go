// Package dispatch issues auto-replies for newly stored events. Failures are
// contained per event: Dispatch always returns an outcome, never an error, so
// a batch of N events produces N independent results.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"instagate/internal/config"
	"instagate/internal/ingest"
	"instagate/internal/log"
	"instagate/internal/store"
)

// MessageSender sends one outbound message through the platform API.
type MessageSender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Outcome is the result of one dispatch attempt.
type Outcome struct {
	Status      store.ReplyStatus
	ErrorDetail string
}

// Dispatcher resolves reply text and sends it to the event's sender.
type Dispatcher struct {
	sender       MessageSender
	templates    *config.ReplyTemplates // nil when no template file is configured
	defaultReply string
	timeout      time.Duration
	logger       *slog.Logger
}

func New(sender MessageSender, defaultReply string, templates *config.ReplyTemplates, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Dispatcher{
		sender:       sender,
		templates:    templates,
		defaultReply: defaultReply,
		timeout:      timeout,
		logger:       log.WithComponent("dispatch"),
	}
}

// Dispatch sends an auto-reply for ev, invoked only for events that were just
// inserted. Only text direct messages get a reply; everything else (comments,
// reactions, attachment-only messages) is acknowledged as handled without an
// API call. The outbound call carries a bounded timeout so a hung platform API
// cannot hold the webhook acknowledgment hostage.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ingest.InboundEvent) Outcome {
	if ev.Type != ingest.EventTypeMessage || !ev.HasText() {
		d.logger.Debug("no reply for non-text event",
			"event_id", ev.EventID,
			"event_type", string(ev.Type),
		)
		return Outcome{Status: store.StatusSent}
	}

	reply := d.templates.Resolve(ev.Text, d.defaultReply)

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.SendText(sendCtx, ev.SenderID, reply); err != nil {
		d.logger.Warn("reply dispatch failed",
			"event_id", ev.EventID,
			"recipient_id", ev.SenderID,
			"error", err,
		)
		return Outcome{Status: store.StatusFailed, ErrorDetail: err.Error()}
	}

	return Outcome{Status: store.StatusSent}
}
