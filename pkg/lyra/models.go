package lyra

import (
	"time"

	"github.com/lyralabs/lyra/pkg/docstore"
)

// Message roles.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
)

// timeLayout is RFC3339 with a fixed nine-digit fraction so that the string
// order of two stored timestamps matches their time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// Profile is the users/{uid} document.
type Profile struct {
	UID         string
	DisplayName string
	Email       string
}

// Fields returns the document form of p.
func (p Profile) Fields() map[string]any {
	return map[string]any{
		"displayName": p.DisplayName,
		"email":       p.Email,
	}
}

// ProfileFromDoc decodes a profile document. Unknown or mistyped fields
// decode to zero values; client-written documents are not trusted.
func ProfileFromDoc(doc docstore.Document) Profile {
	return Profile{
		UID:         doc.ID,
		DisplayName: str(doc.Fields, "displayName"),
		Email:       str(doc.Fields, "email"),
	}
}

// ChatSession is one tutoring conversation.
type ChatSession struct {
	ID        string
	Subject   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fields returns the document form of s.
func (s ChatSession) Fields() map[string]any {
	return map[string]any{
		fieldSubject:   s.Subject,
		fieldTitle:     s.Title,
		fieldCreatedAt: formatTime(s.CreatedAt),
		fieldUpdatedAt: formatTime(s.UpdatedAt),
	}
}

// ChatSessionFromDoc decodes a session document.
func ChatSessionFromDoc(doc docstore.Document) ChatSession {
	s := ChatSession{
		ID:      doc.ID,
		Subject: str(doc.Fields, fieldSubject),
		Title:   str(doc.Fields, fieldTitle),
	}
	if t, ok := parseTime(str(doc.Fields, fieldCreatedAt)); ok {
		s.CreatedAt = t
	}
	if t, ok := parseTime(str(doc.Fields, fieldUpdatedAt)); ok {
		s.UpdatedAt = t
	}
	return s
}

// ChatSessionsFromSnapshot decodes a sessions query snapshot in order.
func ChatSessionsFromSnapshot(docs []docstore.Document) []ChatSession {
	out := make([]ChatSession, len(docs))
	for i, d := range docs {
		out[i] = ChatSessionFromDoc(d)
	}
	return out
}

// ChatMessage is one turn inside a session. Role is RoleStudent or RoleTutor.
type ChatMessage struct {
	ID        string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Fields returns the document form of m.
func (m ChatMessage) Fields() map[string]any {
	return map[string]any{
		fieldRole:      m.Role,
		fieldText:      m.Text,
		fieldCreatedAt: formatTime(m.CreatedAt),
	}
}

// ChatMessageFromDoc decodes a message document.
func ChatMessageFromDoc(doc docstore.Document) ChatMessage {
	m := ChatMessage{
		ID:   doc.ID,
		Role: str(doc.Fields, fieldRole),
		Text: str(doc.Fields, fieldText),
	}
	if t, ok := parseTime(str(doc.Fields, fieldCreatedAt)); ok {
		m.CreatedAt = t
	}
	return m
}

// ChatMessagesFromSnapshot decodes a messages query snapshot in order.
func ChatMessagesFromSnapshot(docs []docstore.Document) []ChatMessage {
	out := make([]ChatMessage, len(docs))
	for i, d := range docs {
		out[i] = ChatMessageFromDoc(d)
	}
	return out
}

func str(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return s
}
