// Package memstore provides an in-memory docstore.Store with live watchers.
// It backs tests, examples, and single-process deployments; an optional
// access hook stands in for the server-side rules engine so permission
// behavior can be exercised locally.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lyralabs/lyra/pkg/docstore"
)

// AccessFunc decides whether an operation is allowed. Returning an error
// rejects the operation; returning a *docstore.PermissionError (or any
// error wrapping docstore.ErrPermissionDenied) marks it as a rules denial.
type AccessFunc = docstore.AccessFunc

// Option configures a Store.
type Option func(*Store)

// WithAccess installs the access hook consulted before every operation,
// including each watcher evaluation.
func WithAccess(fn AccessFunc) Option {
	return func(s *Store) { s.access = fn }
}

// WithIDFunc overrides the generator used for collection-level Create.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store is the in-memory backend. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	// collection path -> document ID -> fields
	collections map[string]map[string]map[string]any
	closed      bool

	hub    *docstore.WatchHub
	access AccessFunc
	newID  func() string
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		hub:         docstore.NewWatchHub(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) checkAccess(ctx context.Context, method docstore.Method, p docstore.Path, resource map[string]any) error {
	if s.access == nil {
		return nil
	}
	return s.access(ctx, method, p, resource)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

// GetDocument reads one document; Exists=false when it is absent.
func (s *Store) GetDocument(ctx context.Context, p docstore.Path) (docstore.DocumentSnapshot, error) {
	if !p.Document() {
		return docstore.DocumentSnapshot{}, fmt.Errorf("%w: %q is not a document path", docstore.ErrInvalidPath, p.String())
	}
	if err := s.checkOpen(); err != nil {
		return docstore.DocumentSnapshot{}, err
	}
	if err := s.checkAccess(ctx, docstore.MethodGet, p, nil); err != nil {
		return docstore.DocumentSnapshot{}, err
	}
	return s.readDocument(p), nil
}

func (s *Store) readDocument(p docstore.Path) docstore.DocumentSnapshot {
	coll, id, _ := p.Split()
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[coll.String()][id]
	if !ok {
		return docstore.DocumentSnapshot{ID: id, Exists: false}
	}
	return docstore.DocumentSnapshot{ID: id, Fields: docstore.CloneFields(fields), Exists: true}
}

// RunQuery evaluates q once against current state.
func (s *Store) RunQuery(ctx context.Context, q docstore.Query) (docstore.QuerySnapshot, error) {
	if err := q.Validate(); err != nil {
		return docstore.QuerySnapshot{}, err
	}
	if err := s.checkOpen(); err != nil {
		return docstore.QuerySnapshot{}, err
	}
	if err := s.checkAccess(ctx, docstore.MethodList, q.Path, nil); err != nil {
		return docstore.QuerySnapshot{}, err
	}
	return docstore.QuerySnapshot{Docs: docstore.Apply(q, s.snapshotCollection(q.Path))}, nil
}

func (s *Store) snapshotCollection(coll docstore.Path) []docstore.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.collections[coll.String()]
	docs := make([]docstore.Document, 0, len(rows))
	for id, fields := range rows {
		docs = append(docs, docstore.Document{ID: id, Fields: docstore.CloneFields(fields)})
	}
	return docs
}

// Create inserts a new document. A collection path assigns a fresh ID;
// a document path fails with ErrExists when the document is present.
func (s *Store) Create(ctx context.Context, p docstore.Path, fields map[string]any) (docstore.Document, error) {
	if p.IsZero() {
		return docstore.Document{}, fmt.Errorf("%w: empty path", docstore.ErrInvalidPath)
	}
	docPath := p
	if p.Collection() {
		var err error
		docPath, err = p.Child(s.newID())
		if err != nil {
			return docstore.Document{}, err
		}
	}
	if err := s.checkOpen(); err != nil {
		return docstore.Document{}, err
	}
	if err := s.checkAccess(ctx, docstore.MethodCreate, docPath, fields); err != nil {
		return docstore.Document{}, err
	}
	coll, id, _ := docPath.Split()

	s.mu.Lock()
	rows := s.collections[coll.String()]
	if _, exists := rows[id]; exists {
		s.mu.Unlock()
		return docstore.Document{}, fmt.Errorf("%w: %s", docstore.ErrExists, docPath.String())
	}
	if rows == nil {
		rows = make(map[string]map[string]any)
		s.collections[coll.String()] = rows
	}
	stored := docstore.CloneFields(fields)
	if stored == nil {
		stored = map[string]any{}
	}
	rows[id] = stored
	s.mu.Unlock()

	s.hub.Notify(docPath)
	return docstore.Document{ID: id, Fields: docstore.CloneFields(stored)}, nil
}

// Set blindly overwrites the document at p, creating it if absent.
func (s *Store) Set(ctx context.Context, p docstore.Path, fields map[string]any) error {
	if !p.Document() {
		return fmt.Errorf("%w: %q is not a document path", docstore.ErrInvalidPath, p.String())
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.checkAccess(ctx, docstore.MethodWrite, p, fields); err != nil {
		return err
	}
	coll, id, _ := p.Split()

	s.mu.Lock()
	rows := s.collections[coll.String()]
	if rows == nil {
		rows = make(map[string]map[string]any)
		s.collections[coll.String()] = rows
	}
	stored := docstore.CloneFields(fields)
	if stored == nil {
		stored = map[string]any{}
	}
	rows[id] = stored
	s.mu.Unlock()

	s.hub.Notify(p)
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, p docstore.Path, fields map[string]any) error {
	if !p.Document() {
		return fmt.Errorf("%w: %q is not a document path", docstore.ErrInvalidPath, p.String())
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.checkAccess(ctx, docstore.MethodUpdate, p, fields); err != nil {
		return err
	}
	coll, id, _ := p.Split()

	s.mu.Lock()
	rows := s.collections[coll.String()]
	cur, ok := rows[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, p.String())
	}
	for k, v := range docstore.CloneFields(fields) {
		cur[k] = v
	}
	s.mu.Unlock()

	s.hub.Notify(p)
	return nil
}

// Delete removes the document at p. Deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, p docstore.Path) error {
	if !p.Document() {
		return fmt.Errorf("%w: %q is not a document path", docstore.ErrInvalidPath, p.String())
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.checkAccess(ctx, docstore.MethodDelete, p, nil); err != nil {
		return err
	}
	coll, id, _ := p.Split()

	s.mu.Lock()
	rows := s.collections[coll.String()]
	_, existed := rows[id]
	delete(rows, id)
	s.mu.Unlock()

	if existed {
		s.hub.Notify(p)
	}
	return nil
}

// WatchQuery registers a live watcher for q. Access denials are not
// reported here; they arrive as error results on the watcher's channel,
// the same way a remote rules engine fails a streaming listen.
func (s *Store) WatchQuery(ctx context.Context, q docstore.Query) (docstore.QueryWatcher, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context, q docstore.Query) (docstore.QuerySnapshot, error) {
		if err := s.checkAccess(ctx, docstore.MethodList, q.Path, nil); err != nil {
			return docstore.QuerySnapshot{}, err
		}
		return docstore.QuerySnapshot{Docs: docstore.Apply(q, s.snapshotCollection(q.Path))}, nil
	}
	return s.hub.WatchQuery(ctx, q, fetch), nil
}

// WatchDocument registers a live watcher for the document at p.
func (s *Store) WatchDocument(ctx context.Context, p docstore.Path) (docstore.DocumentWatcher, error) {
	if !p.Document() {
		return nil, fmt.Errorf("%w: %q is not a document path", docstore.ErrInvalidPath, p.String())
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context, p docstore.Path) (docstore.DocumentSnapshot, error) {
		if err := s.checkAccess(ctx, docstore.MethodGet, p, nil); err != nil {
			return docstore.DocumentSnapshot{}, err
		}
		return s.readDocument(p), nil
	}
	return s.hub.WatchDocument(ctx, p, fetch), nil
}

// Close stops all watchers and rejects further operations.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}
