// Package docstore defines the document-store contract Lyra synchronizes
// against: paths, queries, snapshots, and the Store interface with its
// live watchers. Backends must provide identical query and watch semantics
// so components layered on top behave the same against any of them.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Method names a store operation the way a security-rules engine sees it.
type Method string

const (
	MethodGet    Method = "get"
	MethodList   Method = "list"
	MethodCreate Method = "create"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
	// MethodWrite is a blind overwrite: create-or-replace without
	// distinguishing which.
	MethodWrite Method = "write"
)

var (
	// ErrNotFound reports a read or update of a document that does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrExists reports a create of a document that already exists.
	ErrExists = errors.New("docstore: already exists")
	// ErrInvalidPath reports a malformed path or a path of the wrong kind.
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrClosed reports an operation on a closed store.
	ErrClosed = errors.New("docstore: store closed")
	// ErrPermissionDenied matches any *PermissionError via errors.Is.
	ErrPermissionDenied = errors.New("docstore: permission denied")
)

// PermissionError reports an operation rejected by the store's access rules.
type PermissionError struct {
	Method Method
	Path   Path
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("docstore: permission denied: %s %s", e.Method, e.Path.String())
}

// Is makes errors.Is(err, ErrPermissionDenied) match.
func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// QueryResult is one delivery from a query watcher: a snapshot or an error.
type QueryResult struct {
	Snapshot *QuerySnapshot
	Err      error
}

// DocumentResult is one delivery from a document watcher.
type DocumentResult struct {
	Snapshot *DocumentSnapshot
	Err      error
}

// QueryWatcher streams snapshots of a query's result set. An initial
// snapshot is delivered after registration, then one per observed change,
// coalesced so a slow consumer sees the newest state rather than every
// intermediate one. Results closes after Stop or context cancellation.
type QueryWatcher interface {
	Results() <-chan QueryResult
	// Stop detaches the watcher and closes Results. Idempotent.
	Stop()
}

// DocumentWatcher streams snapshots of a single document.
type DocumentWatcher interface {
	Results() <-chan DocumentResult
	Stop()
}

// AccessFunc authorizes one store operation. Backends consult it before
// applying the operation and before each watcher evaluation, so denials
// reach streaming listeners too.
type AccessFunc func(ctx context.Context, method Method, p Path, resource map[string]any) error

// Store is a document database: point reads and writes plus live watchers.
//
// Create with a collection path assigns a fresh document ID; with a
// document path it fails with ErrExists when the document is present.
// Set is a blind overwrite. Update merges fields into an existing document
// and fails with ErrNotFound when it is absent. Delete is idempotent.
type Store interface {
	GetDocument(ctx context.Context, p Path) (DocumentSnapshot, error)
	RunQuery(ctx context.Context, q Query) (QuerySnapshot, error)

	Create(ctx context.Context, p Path, fields map[string]any) (Document, error)
	Set(ctx context.Context, p Path, fields map[string]any) error
	Update(ctx context.Context, p Path, fields map[string]any) error
	Delete(ctx context.Context, p Path) error

	WatchQuery(ctx context.Context, q Query) (QueryWatcher, error)
	WatchDocument(ctx context.Context, p Path) (DocumentWatcher, error)

	Close() error
}
