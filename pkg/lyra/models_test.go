package lyra

import (
	"testing"
	"time"

	"github.com/lyralabs/lyra/pkg/docstore"
)

func TestChatSessionRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 500_000_000, time.UTC)
	s := ChatSession{
		ID:        "s1",
		Subject:   "math",
		Title:     "Fractions",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
	got := ChatSessionFromDoc(docstore.Document{ID: "s1", Fields: s.Fields()})
	if got.Subject != "math" || got.Title != "Fractions" {
		t.Fatalf("got %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("times: %+v", got)
	}
}

func TestChatMessageRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	m := ChatMessage{ID: "m1", Role: RoleTutor, Text: "try again", CreatedAt: at}
	got := ChatMessageFromDoc(docstore.Document{ID: "m1", Fields: m.Fields()})
	if got.Role != RoleTutor || got.Text != "try again" || !got.CreatedAt.Equal(at) {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeTolerantOfGarbage(t *testing.T) {
	got := ChatSessionFromDoc(docstore.Document{ID: "s1", Fields: map[string]any{
		"subject":   42,
		"createdAt": "not a time",
	}})
	if got.Subject != "" || !got.CreatedAt.IsZero() {
		t.Fatalf("got %+v", got)
	}
	if m := ChatMessageFromDoc(docstore.Document{ID: "m1"}); m.Role != "" || !m.CreatedAt.IsZero() {
		t.Fatalf("got %+v", m)
	}
}

// Stored timestamps order lexicographically the same way they order in
// time, which the session and message queries depend on. RFC3339Nano
// trims trailing zeros, so "...0.5Z" would sort after "...0.51Z"; the
// fixed-width layout does not.
func TestTimestampStringOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(450 * time.Millisecond),
		base.Add(500 * time.Millisecond),
		base.Add(510 * time.Millisecond),
		base.Add(time.Second),
	}
	for i := 1; i < len(times); i++ {
		a, b := formatTime(times[i-1]), formatTime(times[i])
		if !(a < b) {
			t.Fatalf("%q should sort before %q", a, b)
		}
	}
	// Round trip through the tolerant parser.
	for _, tm := range times {
		got, ok := parseTime(formatTime(tm))
		if !ok || !got.Equal(tm) {
			t.Fatalf("round trip of %v: %v %v", tm, got, ok)
		}
	}
}
