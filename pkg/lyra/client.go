// Package lyra is the application domain: the document layout students and
// teachers share (profiles, chat sessions, messages, tutor settings) and a
// Client facade that wires the store, the event bus, identity, optimistic
// writes, live queries, and the tutoring engine together.
package lyra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lyralabs/lyra/pkg/auth"
	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/errmodel"
	"github.com/lyralabs/lyra/pkg/eventbus"
	"github.com/lyralabs/lyra/pkg/livequery"
	"github.com/lyralabs/lyra/pkg/optimistic"
	"github.com/lyralabs/lyra/pkg/rules"
	"github.com/lyralabs/lyra/pkg/tutor"
	"github.com/lyralabs/lyra/pkg/tutor/history"
	"github.com/lyralabs/lyra/pkg/tutor/prompts"
)

// Client is the application facade. Mutations act as the signed-in user
// from the injected identity; watches take an explicit uid and rely on the
// store's access rules to reject what the actor may not read.
type Client struct {
	store      docstore.Store
	engine     *tutor.Engine
	bus        *eventbus.Bus
	identity   auth.Identity
	prompts    *prompts.Store
	reporter   *rules.Reporter
	writer     *optimistic.Writer
	logger     *slog.Logger
	databaseID string
	now        func() time.Time
	newID      func() string

	writeTimeout time.Duration
}

// ClientOption configures the Client at construction time.
type ClientOption func(*Client)

// WithBus sets the event bus violations are published on. Defaults to a
// private bus nothing listens to.
func WithBus(b *eventbus.Bus) ClientOption {
	return func(c *Client) {
		if b != nil {
			c.bus = b
		}
	}
}

// WithIdentity sets the identity collaborator. Defaults to signed out.
func WithIdentity(id auth.Identity) ClientOption {
	return func(c *Client) {
		if id != nil {
			c.identity = id
		}
	}
}

// WithPromptStore sets the versioned prompt-settings store. Pass the same
// store the engine resolves prompts from, or saved settings will not reach
// the tutor flow until restart.
func WithPromptStore(st *prompts.Store) ClientOption {
	return func(c *Client) {
		if st != nil {
			c.prompts = st
		}
	}
}

// WithDatabaseID overrides the database segment in violation paths.
func WithDatabaseID(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.databaseID = id
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock injects the time source used for document timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDFunc injects the document ID generator. Defaults to uuid.NewString.
func WithIDFunc(newID func() string) ClientOption {
	return func(c *Client) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// WithWriteTimeout bounds each fire-and-forget write.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// NewClient wires a Client around an open store and a tutoring engine.
func NewClient(store docstore.Store, engine *tutor.Engine, opts ...ClientOption) *Client {
	c := &Client{
		store:      store,
		engine:     engine,
		logger:     slog.Default(),
		databaseID: rules.DefaultDatabaseID,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.identity == nil {
		c.identity = auth.NewStatic(nil)
	}
	if c.bus == nil {
		c.bus = eventbus.New(eventbus.WithLogger(c.logger))
	}
	if c.prompts == nil {
		c.prompts = prompts.NewStore()
	}
	c.reporter = rules.NewReporter(c.identity, c.bus,
		rules.WithDatabaseID(c.databaseID),
		rules.WithLogger(c.logger),
		rules.WithClock(c.now),
	)
	wopts := []optimistic.Option{optimistic.WithLogger(c.logger)}
	if c.writeTimeout > 0 {
		wopts = append(wopts, optimistic.WithTimeout(c.writeTimeout))
	}
	c.writer = optimistic.NewWriter(store, c.reporter, wopts...)
	return c
}

// Bus returns the event bus the client publishes violations on.
func (c *Client) Bus() *eventbus.Bus { return c.bus }

// Prompts returns the versioned prompt-settings store.
func (c *Client) Prompts() *prompts.Store { return c.prompts }

// Close waits for in-flight optimistic writes. The store belongs to the
// caller and stays open.
func (c *Client) Close() {
	c.writer.Close()
}

func (c *Client) actor(ctx context.Context) (*auth.User, error) {
	u, err := c.identity.CurrentUser(ctx)
	if err != nil {
		return nil, errmodel.System("identity", "identity lookup failed", nil, err)
	}
	if u == nil {
		return nil, errmodel.Policy("unauthorized", "no signed-in user", nil)
	}
	return u, nil
}

// StartSession creates an empty session for the signed-in student. The
// session is titled by the first Send.
func (c *Client) StartSession(ctx context.Context, subject string) (ChatSession, error) {
	if strings.TrimSpace(subject) == "" {
		return ChatSession{}, errmodel.Validation("missing_subject", "subject is required", nil)
	}
	u, err := c.actor(ctx)
	if err != nil {
		return ChatSession{}, err
	}
	col, err := ChatSessionsPath(u.UID)
	if err != nil {
		return ChatSession{}, err
	}
	now := c.now()
	sess := ChatSession{Subject: subject, CreatedAt: now, UpdatedAt: now}
	doc, err := c.store.Create(ctx, col, sess.Fields())
	if err != nil {
		return ChatSession{}, fmt.Errorf("start session: %w", err)
	}
	sess.ID = doc.ID
	return sess, nil
}

// Send records the student's message, runs the tutor flow over the
// session's history, records the reply, and bumps the session's updatedAt.
// The student message and the reply are written fire-and-forget; write
// failures surface as violations on the bus, not as errors here.
func (c *Client) Send(ctx context.Context, sessionID, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, errmodel.Validation("missing_message", "message is required", nil)
	}
	if sessionID == "" {
		return ChatMessage{}, errmodel.Validation("missing_session", "session id is required", nil)
	}
	u, err := c.actor(ctx)
	if err != nil {
		return ChatMessage{}, err
	}

	sessPath, err := ChatSessionPath(u.UID, sessionID)
	if err != nil {
		return ChatMessage{}, err
	}
	snap, err := c.store.GetDocument(ctx, sessPath)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("send: load session: %w", err)
	}
	if !snap.Exists {
		return ChatMessage{}, fmt.Errorf("send: session %q: %w", sessionID, docstore.ErrNotFound)
	}
	sess := ChatSessionFromDoc(docstore.Document{ID: sessionID, Fields: snap.Fields})

	q, err := ChatMessagesQuery(u.UID, sessionID)
	if err != nil {
		return ChatMessage{}, err
	}
	prior, err := c.store.RunQuery(ctx, q)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("send: load history: %w", err)
	}
	turns := make([]history.Turn, 0, len(prior.Docs))
	for _, m := range ChatMessagesFromSnapshot(prior.Docs) {
		turns = append(turns, history.Turn{Role: m.Role, Text: m.Text})
	}

	studentMsg := ChatMessage{ID: c.newID(), Role: RoleStudent, Text: text, CreatedAt: c.now()}
	studentPath, err := ChatMessagePath(u.UID, sessionID, studentMsg.ID)
	if err != nil {
		return ChatMessage{}, err
	}
	c.writer.Set(studentPath, studentMsg.Fields())

	reply, err := c.engine.Tutor(ctx, tutor.TutorRequest{
		Subject: sess.Subject,
		Student: u.DisplayName,
		Message: text,
		History: turns,
	})
	if err != nil {
		return ChatMessage{}, err
	}

	tutorMsg := ChatMessage{ID: c.newID(), Role: RoleTutor, Text: reply.Text, CreatedAt: c.now()}
	tutorPath, err := ChatMessagePath(u.UID, sessionID, tutorMsg.ID)
	if err != nil {
		return ChatMessage{}, err
	}
	c.writer.Set(tutorPath, tutorMsg.Fields())

	update := map[string]any{fieldUpdatedAt: formatTime(c.now())}
	if sess.Title == "" {
		if titled, terr := c.engine.Title(ctx, tutor.TitleRequest{Subject: sess.Subject, Message: text}); terr == nil {
			update[fieldTitle] = titled.Title
		} else {
			c.logger.Debug("session title generation failed", "session", sessionID, "error", terr)
		}
	}
	c.writer.Update(sessPath, update)

	return tutorMsg, nil
}

// WatchSessions opens a live view over uid's sessions, most recent first.
// The caller owns the returned subscription and must Close it.
func (c *Client) WatchSessions(uid string) (*livequery.Collection, error) {
	q, err := ChatSessionsQuery(uid)
	if err != nil {
		return nil, err
	}
	col := livequery.NewCollection(c.store, c.liveOptions())
	if err := col.SetQuery(q); err != nil {
		col.Close()
		return nil, err
	}
	return col, nil
}

// WatchMessages opens a live view over one session's messages in send order.
func (c *Client) WatchMessages(uid, sessionID string) (*livequery.Collection, error) {
	q, err := ChatMessagesQuery(uid, sessionID)
	if err != nil {
		return nil, err
	}
	col := livequery.NewCollection(c.store, c.liveOptions())
	if err := col.SetQuery(q); err != nil {
		col.Close()
		return nil, err
	}
	return col, nil
}

func (c *Client) liveOptions() livequery.Options {
	return livequery.Options{
		Bus:        c.bus,
		Identity:   c.identity,
		DatabaseID: c.databaseID,
		Logger:     c.logger,
	}
}

// SaveTutorSettings lints and versions the signed-in teacher's settings,
// validates the document form against the schema, and persists it at
// users/{uid}/tutorSettings/{subject}. Persisting is synchronous so the
// editor surface sees failures directly.
func (c *Client) SaveTutorSettings(ctx context.Context, s prompts.Settings) (prompts.Settings, error) {
	u, err := c.actor(ctx)
	if err != nil {
		return prompts.Settings{}, err
	}
	saved, issues, err := c.prompts.Save(s)
	if err != nil {
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = is.Rule + ": " + is.Message
		}
		return prompts.Settings{}, errmodel.Validation("lint_failed", strings.Join(msgs, "; "), map[string]any{
			"subject": s.Subject,
		})
	}
	fields := saved.Fields()
	if err := prompts.ValidateDocument(fields); err != nil {
		return prompts.Settings{}, errmodel.Validation("schema", err.Error(), map[string]any{
			"subject": saved.Subject,
		})
	}
	p, err := TutorSettingsPath(u.UID, saved.Subject)
	if err != nil {
		return prompts.Settings{}, err
	}
	if err := c.store.Set(ctx, p, fields); err != nil {
		return prompts.Settings{}, fmt.Errorf("save tutor settings: %w", err)
	}
	return saved, nil
}

// TutorSettings reads one persisted settings document back.
func (c *Client) TutorSettings(ctx context.Context, teacherUID, subject string) (prompts.Settings, error) {
	p, err := TutorSettingsPath(teacherUID, subject)
	if err != nil {
		return prompts.Settings{}, err
	}
	snap, err := c.store.GetDocument(ctx, p)
	if err != nil {
		return prompts.Settings{}, fmt.Errorf("tutor settings: %w", err)
	}
	if !snap.Exists {
		return prompts.Settings{}, fmt.Errorf("tutor settings %s/%s: %w", teacherUID, subject, docstore.ErrNotFound)
	}
	return prompts.FromDocument(docstore.Document{ID: subject, Fields: snap.Fields})
}
