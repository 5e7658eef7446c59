// Package store owns all persisted webhook state. Both tables are append-only
// from the pipeline's perspective: events are inserted exactly once per unique
// delivery and never updated, and each event gets at most one reply record.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"instagate/internal/ingest"
)

// ErrEventNotFound is returned when an event id was never inserted.
var ErrEventNotFound = errors.New("event not found")

// ReplyStatus is the terminal state of a reply attempt.
type ReplyStatus string

const (
	StatusSent   ReplyStatus = "sent"
	StatusFailed ReplyStatus = "failed"
)

// ReplyRecord is the persisted outcome of one reply attempt.
type ReplyRecord struct {
	ID          string      `json:"id"`
	EventID     string      `json:"event_id"`
	Status      ReplyStatus `json:"status"`
	ErrorDetail string      `json:"error_detail,omitempty"`
	AttemptedAt time.Time   `json:"attempted_at"`
}

// StoredEvent is an inbound event joined with its reply record, as exposed to
// the read-only admin API.
type StoredEvent struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"event_type"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text,omitempty"`
	Timestamp   int64     `json:"ts"`
	BodyHash    string    `json:"body_hash"`
	ReceivedAt  time.Time `json:"received_at"`

	ReplyStatus string     `json:"reply_status,omitempty"`
	ReplyError  string     `json:"reply_error,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`
}

// Store persists inbound events and reply records in SQLite.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// TryInsert persists an event unless its id is already present. It reports
// whether this call inserted the row. Uniqueness is arbitrated by the
// event_id primary key, so concurrent redeliveries of the same event see
// exactly one inserted=true.
func (s *Store) TryInsert(ctx context.Context, ev ingest.InboundEvent, bodyHash string) (bool, error) {
	if ev.EventID == "" {
		return false, fmt.Errorf("event id is empty")
	}

	var text any
	if ev.HasText() {
		text = ev.Text
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages(event_id, event_type, sender_id, recipient_id, text, ts, raw, body_hash, received_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING;
`, ev.EventID, string(ev.Type), ev.SenderID, ev.RecipientID, text, ev.Timestamp, string(ev.Raw), bodyHash, now)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: rows affected: %w", err)
	}
	return n > 0, nil
}

// RecordReply appends the reply outcome for an event. It returns
// ErrEventNotFound if the event id was never inserted; in the normal flow that
// indicates a programming error, since replies are only attempted for events
// TryInsert just accepted.
func (s *Store) RecordReply(ctx context.Context, eventID string, status ReplyStatus, errorDetail string) (*ReplyRecord, error) {
	rec := &ReplyRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		Status:      status,
		ErrorDetail: errorDetail,
		AttemptedAt: time.Now().UTC(),
	}

	var detail any
	if errorDetail != "" {
		detail = errorDetail
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO replies(id, event_id, status, error_detail, attempted_at)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM messages WHERE event_id = ?);
`, rec.ID, eventID, string(status), detail, rec.AttemptedAt.Format(time.RFC3339Nano), eventID)
	if err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("record reply: rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("record reply for %q: %w", eventID, ErrEventNotFound)
	}
	return rec, nil
}

const selectEvent = `
SELECT m.event_id, m.event_type, m.sender_id, m.recipient_id, m.text, m.ts,
       m.body_hash, m.received_at, r.status, r.error_detail, r.attempted_at
FROM messages m
LEFT JOIN replies r ON r.event_id = m.event_id
`

// ListEvents returns the most recently received events, newest first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectEvent+`
ORDER BY m.received_at DESC, m.rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// GetEvent returns a single stored event by its platform id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, selectEvent+`WHERE m.event_id = ?;`, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get event: %w", err)
		}
		return nil, ErrEventNotFound
	}
	ev, err := scanEvent(rows)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &ev, nil
}

func scanEvent(rows *sql.Rows) (StoredEvent, error) {
	var (
		ev          StoredEvent
		text        sql.NullString
		receivedAtS string
		replyStatus sql.NullString
		replyError  sql.NullString
		attemptedAt sql.NullString
	)
	err := rows.Scan(
		&ev.EventID, &ev.Type, &ev.SenderID, &ev.RecipientID, &text, &ev.Timestamp,
		&ev.BodyHash, &receivedAtS, &replyStatus, &replyError, &attemptedAt,
	)
	if err != nil {
		return StoredEvent{}, err
	}

	ev.Text = text.String
	receivedAt, err := time.Parse(time.RFC3339Nano, receivedAtS)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("parse received_at for %q: %w", ev.EventID, err)
	}
	ev.ReceivedAt = receivedAt
	ev.ReplyStatus = replyStatus.String
	ev.ReplyError = replyError.String
	if attemptedAt.Valid {
		repliedAt, err := time.Parse(time.RFC3339Nano, attemptedAt.String)
		if err != nil {
			return StoredEvent{}, fmt.Errorf("parse attempted_at for %q: %w", ev.EventID, err)
		}
		ev.RepliedAt = &repliedAt
	}
	return ev, nil
}
