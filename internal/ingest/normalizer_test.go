package ingest

import (
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, raw []byte) []InboundEvent {
	t.Helper()
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var out []InboundEvent
	for ev := range p.Events(discardLogger()) {
		out = append(out, ev)
	}
	return out
}

func TestParseRejectsJunk(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("Parse accepted junk")
	}
}

func TestEventsTextMessage(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1710000005000,"messaging":[
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":1710000000000,"message":{"mid":"m1","text":"Salam"}}
	]}]}`)

	evs := collect(t, raw)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.EventID != "m1" || ev.Type != EventTypeMessage {
		t.Errorf("event = %+v, want m1 message", ev)
	}
	if ev.SenderID != "111" || ev.RecipientID != "222" {
		t.Errorf("participants = %s/%s, want 111/222", ev.SenderID, ev.RecipientID)
	}
	if ev.Text != "Salam" || !ev.HasText() {
		t.Errorf("text = %q, want Salam", ev.Text)
	}
	if ev.Timestamp != 1710000000000 {
		t.Errorf("timestamp = %d, want sub-event timestamp", ev.Timestamp)
	}
	if len(ev.Raw) == 0 {
		t.Error("raw fragment not retained")
	}
}

func TestEventsSkipsMalformedSibling(t *testing.T) {
	// First sub-event has no sender; second has no event id; third is fine.
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1,"messaging":[
		{"recipient":{"id":"222"},"timestamp":1,"message":{"mid":"m1","text":"a"}},
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":2},
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":3,"message":{"mid":"m3","text":"c"}}
	]}]}`)

	evs := collect(t, raw)
	if len(evs) != 1 || evs[0].EventID != "m3" {
		t.Fatalf("events = %+v, want only m3", evs)
	}
}

func TestEventsReactionHasNoText(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1,"messaging":[
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":1,"reaction":{"mid":"r1","action":"react"}}
	]}]}`)

	evs := collect(t, raw)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	if evs[0].EventID != "reaction:r1:111:react" || evs[0].HasText() {
		t.Errorf("event = %+v, want derived reaction id without text", evs[0])
	}
}

func TestEventsReactionIDDistinctFromMessage(t *testing.T) {
	// A reaction carries the reacted message's mid; reacting to an already
	// stored inbound message must not look like a redelivery of it, and
	// react/unreact must not collapse into one event.
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1,"messaging":[
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":1,"message":{"mid":"m1","text":"hi"}},
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":2,"reaction":{"mid":"m1","action":"react"}},
		{"sender":{"id":"111"},"recipient":{"id":"222"},"timestamp":3,"reaction":{"mid":"m1","action":"unreact"}}
	]}]}`)

	evs := collect(t, raw)
	if len(evs) != 3 {
		t.Fatalf("events = %d, want 3", len(evs))
	}
	seen := map[string]bool{}
	for _, ev := range evs {
		if seen[ev.EventID] {
			t.Errorf("duplicate event id %q", ev.EventID)
		}
		seen[ev.EventID] = true
	}
	if !seen["m1"] {
		t.Error("message event id changed")
	}
}

func TestEventsComment(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1710000005000,"changes":[
		{"field":"comments","value":{"id":"c1","text":"send promo please","from":{"id":"user-9"}}}
	]}]}`)

	evs := collect(t, raw)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.EventID != "c1" || ev.Type != EventTypeComment {
		t.Errorf("event = %+v, want c1 comment", ev)
	}
	if ev.SenderID != "user-9" || ev.RecipientID != "biz" {
		t.Errorf("participants = %s/%s, want user-9/biz", ev.SenderID, ev.RecipientID)
	}
	if ev.Timestamp != 1710000005000 {
		t.Errorf("timestamp = %d, want entry time", ev.Timestamp)
	}
}

func TestEventsIgnoresNonCommentChanges(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1,"changes":[
		{"field":"story_insights","value":{"id":"x1"}}
	]}]}`)

	if evs := collect(t, raw); len(evs) != 0 {
		t.Errorf("events = %+v, want none", evs)
	}
}

func TestEventsMultipleEntries(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[
		{"id":"biz","time":1,"messaging":[{"sender":{"id":"1"},"recipient":{"id":"2"},"timestamp":1,"message":{"mid":"m1","text":"a"}}]},
		{"id":"biz","time":2,"changes":[{"field":"comments","value":{"comment_id":"c1","text":"b","from":{"id":"3"}}}]}
	]}`)

	evs := collect(t, raw)
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	if evs[0].EventID != "m1" || evs[1].EventID != "c1" {
		t.Errorf("ids = %s,%s, want m1,c1", evs[0].EventID, evs[1].EventID)
	}
}

func TestEventsEmptyPayload(t *testing.T) {
	if evs := collect(t, []byte(`{}`)); len(evs) != 0 {
		t.Errorf("events = %+v, want none", evs)
	}
}

func TestEventsSinglePassStopsEarly(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"id":"biz","time":1,"messaging":[
		{"sender":{"id":"1"},"recipient":{"id":"2"},"timestamp":1,"message":{"mid":"m1"}},
		{"sender":{"id":"1"},"recipient":{"id":"2"},"timestamp":2,"message":{"mid":"m2"}}
	]}]}`)

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var seen int
	for range p.Events(discardLogger()) {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("seen = %d, want iteration to honor early break", seen)
	}
}
