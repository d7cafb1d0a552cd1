// Package optimistic provides fire-and-forget store writes. Callers get no
// result and no error: the write runs on its own goroutine, and a failure
// surfaces as a permission violation on the event bus, where the
// application's diagnostic listeners pick it up. Two racing writes that
// both fail produce two violations; nothing deduplicates them.
package optimistic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/rules"
)

const defaultTimeout = 30 * time.Second

// Option configures a Writer.
type Option func(*Writer)

// WithTimeout bounds each fired write. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets the logger used to record the underlying store errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// Writer issues non-blocking writes against a store, reporting failures
// through a rules.Reporter. Safe for concurrent use.
type Writer struct {
	store    docstore.Store
	reporter *rules.Reporter
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewWriter wires a writer to its store and reporter.
func NewWriter(store docstore.Store, reporter *rules.Reporter, opts ...Option) *Writer {
	w := &Writer{
		store:    store,
		reporter: reporter,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create inserts a document without waiting for the result. A collection
// path gets an auto-assigned ID. Reported as method "create" on failure.
func (w *Writer) Create(p docstore.Path, fields map[string]any) {
	fields = docstore.CloneFields(fields)
	w.fire(docstore.MethodCreate, p, fields, func(ctx context.Context) error {
		_, err := w.store.Create(ctx, p, fields)
		return err
	})
}

// Set blindly overwrites the document at p. Reported as method "write":
// the caller did not state whether it meant create or update.
func (w *Writer) Set(p docstore.Path, fields map[string]any) {
	fields = docstore.CloneFields(fields)
	w.fire(docstore.MethodWrite, p, fields, func(ctx context.Context) error {
		return w.store.Set(ctx, p, fields)
	})
}

// Update merges fields into an existing document. Reported as "update".
func (w *Writer) Update(p docstore.Path, fields map[string]any) {
	fields = docstore.CloneFields(fields)
	w.fire(docstore.MethodUpdate, p, fields, func(ctx context.Context) error {
		return w.store.Update(ctx, p, fields)
	})
}

// Delete removes the document at p. Reported as "delete".
func (w *Writer) Delete(p docstore.Path) {
	w.fire(docstore.MethodDelete, p, nil, func(ctx context.Context) error {
		return w.store.Delete(ctx, p)
	})
}

func (w *Writer) fire(method docstore.Method, p docstore.Path, resource map[string]any, op func(context.Context) error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("write dropped: writer closed", "method", string(method), "path", p.String())
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := op(ctx); err != nil {
			w.logger.Debug("optimistic write failed", "method", string(method), "path", p.String(), "error", err)
			w.reporter.Report(ctx, method, p, resource)
		}
	}()
}

// Close stops accepting writes and waits for in-flight ones to finish,
// including the publication of their failure reports.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
}
