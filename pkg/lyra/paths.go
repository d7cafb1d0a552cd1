package lyra

import "github.com/lyralabs/lyra/pkg/docstore"

// Collection names shared by every client of the document layout.
const (
	colUsers         = "users"
	colChatSessions  = "chatSessions"
	colMessages      = "messages"
	colTutorSettings = "tutorSettings"
)

// Document field names shared between codecs and queries.
const (
	fieldSubject   = "subject"
	fieldTitle     = "title"
	fieldRole      = "role"
	fieldText      = "text"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

// ProfilePath is users/{uid}.
func ProfilePath(uid string) (docstore.Path, error) {
	return docstore.Join(colUsers, uid)
}

// ChatSessionsPath is users/{uid}/chatSessions.
func ChatSessionsPath(uid string) (docstore.Path, error) {
	return docstore.Join(colUsers, uid, colChatSessions)
}

// ChatSessionPath is users/{uid}/chatSessions/{sessionID}.
func ChatSessionPath(uid, sessionID string) (docstore.Path, error) {
	return docstore.Join(colUsers, uid, colChatSessions, sessionID)
}

// ChatMessagesPath is users/{uid}/chatSessions/{sessionID}/messages.
func ChatMessagesPath(uid, sessionID string) (docstore.Path, error) {
	return docstore.Join(colUsers, uid, colChatSessions, sessionID, colMessages)
}

// ChatMessagePath is users/{uid}/chatSessions/{sessionID}/messages/{messageID}.
func ChatMessagePath(uid, sessionID, messageID string) (docstore.Path, error) {
	return docstore.Join(colUsers, uid, colChatSessions, sessionID, colMessages, messageID)
}

// TutorSettingsPath is users/{teacherUID}/tutorSettings/{subject}.
func TutorSettingsPath(teacherUID, subject string) (docstore.Path, error) {
	return docstore.Join(colUsers, teacherUID, colTutorSettings, subject)
}

// ChatSessionsQuery lists a student's sessions, most recently active first.
func ChatSessionsQuery(uid string) (docstore.Query, error) {
	p, err := ChatSessionsPath(uid)
	if err != nil {
		return docstore.Query{}, err
	}
	return docstore.Query{
		Path:    p,
		OrderBy: []docstore.Order{{Field: fieldUpdatedAt, Descending: true}},
	}, nil
}

// ChatMessagesQuery lists a session's messages in the order they were sent.
func ChatMessagesQuery(uid, sessionID string) (docstore.Query, error) {
	p, err := ChatMessagesPath(uid, sessionID)
	if err != nil {
		return docstore.Query{}, err
	}
	return docstore.Query{
		Path:    p,
		OrderBy: []docstore.Order{{Field: fieldCreatedAt}},
	}, nil
}

// TutorSettingsQuery lists a teacher's subject settings alphabetically.
func TutorSettingsQuery(teacherUID string) (docstore.Query, error) {
	p, err := docstore.Join(colUsers, teacherUID, colTutorSettings)
	if err != nil {
		return docstore.Query{}, err
	}
	return docstore.Query{
		Path:    p,
		OrderBy: []docstore.Order{{Field: fieldSubject}},
	}, nil
}
