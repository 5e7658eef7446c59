// Package ingest parses the platform's nested webhook payload into a flat
// sequence of inbound events.
//
// A delivery body looks like:
//
//	{"object": "instagram",
//	 "entry": [{"id": "<account>", "time": 1710000000000,
//	            "messaging": [{"sender": {"id": ...}, "recipient": {"id": ...},
//	                           "timestamp": ..., "message": {"mid": ..., "text": ...}}],
//	            "changes":   [{"field": "comments", "value": {...}}]}]}
//
// Sub-events missing a sender, recipient, or event identifier are skipped with
// a warning; well-formed siblings in the same payload still process.
package ingest

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
)

type accountRef struct {
	ID string `json:"id"`
}

type messagingEvent struct {
	Sender    accountRef `json:"sender"`
	Recipient accountRef `json:"recipient"`
	Timestamp int64      `json:"timestamp"`
	Message   *struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
	Reaction *struct {
		MID    string `json:"mid"`
		Action string `json:"action"` // "react" or "unreact"
	} `json:"reaction"`
}

type changeEvent struct {
	Field string `json:"field"`
	Value struct {
		ID        string     `json:"id"`
		CommentID string     `json:"comment_id"`
		Text      string     `json:"text"`
		From      accountRef `json:"from"`
	} `json:"value"`
}

type entry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
	Changes   []json.RawMessage `json:"changes"`
}

// Payload is a parsed webhook delivery body.
type Payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

// Parse decodes a raw delivery body. It only checks the JSON envelope shape;
// individual sub-events are validated during iteration.
func Parse(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return &p, nil
}

// Events returns a single-pass sequence of normalized events. The iteration
// does not mutate the payload; malformed sub-events are logged and skipped.
func (p *Payload) Events(logger *slog.Logger) iter.Seq[InboundEvent] {
	return func(yield func(InboundEvent) bool) {
		for _, ent := range p.Entry {
			for _, raw := range ent.Messaging {
				ev, ok := normalizeMessaging(raw, logger)
				if !ok {
					continue
				}
				if !yield(ev) {
					return
				}
			}
			for _, raw := range ent.Changes {
				ev, ok := normalizeChange(ent, raw, logger)
				if !ok {
					continue
				}
				if !yield(ev) {
					return
				}
			}
		}
	}
}

func normalizeMessaging(raw json.RawMessage, logger *slog.Logger) (InboundEvent, bool) {
	var me messagingEvent
	if err := json.Unmarshal(raw, &me); err != nil {
		logger.Warn("skipping malformed messaging sub-event", "error", err)
		return InboundEvent{}, false
	}

	// Event id comes from the message or reaction; delivery and read
	// receipts carry neither and are not stored.
	var eventID, text string
	switch {
	case me.Message != nil && me.Message.MID != "":
		eventID = me.Message.MID
		text = me.Message.Text
	case me.Reaction != nil && me.Reaction.MID != "":
		// A reaction reuses the reacted message's mid, which may already
		// be stored as the message itself. Derive an id that separates
		// the reaction from the message, the reactor, and the action, so
		// only true redeliveries dedupe against each other.
		eventID = fmt.Sprintf("reaction:%s:%s:%s",
			me.Reaction.MID, me.Sender.ID, me.Reaction.Action)
	}

	if me.Sender.ID == "" || me.Recipient.ID == "" || eventID == "" {
		logger.Warn("skipping messaging sub-event without sender, recipient, or event id",
			"sender_id", me.Sender.ID,
			"recipient_id", me.Recipient.ID,
		)
		return InboundEvent{}, false
	}

	return InboundEvent{
		EventID:     eventID,
		Type:        EventTypeMessage,
		SenderID:    me.Sender.ID,
		RecipientID: me.Recipient.ID,
		Text:        text,
		Timestamp:   me.Timestamp,
		Raw:         raw,
	}, true
}

func normalizeChange(ent entry, raw json.RawMessage, logger *slog.Logger) (InboundEvent, bool) {
	var ch changeEvent
	if err := json.Unmarshal(raw, &ch); err != nil {
		logger.Warn("skipping malformed change sub-event", "error", err)
		return InboundEvent{}, false
	}
	if ch.Field != "comments" {
		return InboundEvent{}, false
	}

	commentID := ch.Value.ID
	if commentID == "" {
		commentID = ch.Value.CommentID
	}
	if ch.Value.From.ID == "" || ent.ID == "" || commentID == "" {
		logger.Warn("skipping comment sub-event without commenter, account, or comment id",
			"comment_id", commentID,
		)
		return InboundEvent{}, false
	}

	return InboundEvent{
		EventID:     commentID,
		Type:        EventTypeComment,
		SenderID:    ch.Value.From.ID,
		RecipientID: ent.ID,
		Text:        ch.Value.Text,
		Timestamp:   ent.Time,
		Raw:         raw,
	}, true
}
