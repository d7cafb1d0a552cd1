package livequery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/rules"
)

// DocState is a document subscription's externally visible state.
// Doc is nil while loading, when no descriptor is set, and when the
// document does not exist; Loading distinguishes the first case from
// the last.
type DocState struct {
	Doc     *docstore.Document
	Loading bool
	Err     error
}

// Document follows a single document path. Unlike query descriptors,
// paths are plain comparable values, so re-setting an equal path is a
// silent no-op with no churn accounting.
type Document struct {
	store    docstore.Store
	reporter *rules.Reporter
	logger   *slog.Logger

	mu      sync.Mutex
	path    docstore.Path
	state   DocState
	cancel  context.CancelFunc
	gen     int
	updates chan DocState
	closed  bool
}

// NewDocument returns a subscription with no path set.
func NewDocument(store docstore.Store, opts Options) *Document {
	l := opts.logger()
	return &Document{
		store:    store,
		reporter: opts.reporter(l),
		logger:   l,
		updates:  make(chan DocState, 1),
	}
}

// Current returns the present state.
func (d *Document) Current() DocState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Updates delivers state changes, coalesced latest-wins. Closed by Close.
func (d *Document) Updates() <-chan DocState {
	return d.updates
}

// SetPath changes the watched document. The zero Path clears the
// descriptor and resets state to (nil, false, nil).
func (d *Document) SetPath(p docstore.Path) error {
	if p.IsZero() {
		return d.clear()
	}
	if !p.Document() {
		return &pathError{p}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.path == p {
		d.mu.Unlock()
		return nil
	}
	prevCancel := d.cancel
	d.cancel = nil
	d.gen++
	gen := d.gen
	d.path = p
	d.state = DocState{Doc: d.state.Doc, Loading: true}
	d.pushLocked(d.state)
	d.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w, err := d.store.WatchDocument(ctx, p)
	if err != nil {
		cancel()
		d.mu.Lock()
		if d.gen == gen && !d.closed {
			d.state = DocState{Err: err}
			d.pushLocked(d.state)
		}
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	if d.gen != gen || d.closed {
		d.mu.Unlock()
		cancel()
		w.Stop()
		return nil
	}
	d.cancel = cancel
	d.mu.Unlock()

	go d.consume(gen, p, w)
	return nil
}

func (d *Document) clear() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	prevCancel := d.cancel
	d.cancel = nil
	d.gen++
	d.path = docstore.Path{}
	d.state = DocState{}
	d.pushLocked(d.state)
	d.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	return nil
}

// Close stops the watcher and closes Updates. Idempotent.
func (d *Document) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cancel := d.cancel
	d.cancel = nil
	close(d.updates)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (d *Document) consume(gen int, p docstore.Path, w docstore.DocumentWatcher) {
	for res := range w.Results() {
		if res.Err != nil {
			v := d.reporter.Build(context.Background(), docstore.MethodGet, p, nil)
			d.mu.Lock()
			if d.gen != gen || d.closed {
				d.mu.Unlock()
				return
			}
			d.state = DocState{Err: v}
			d.pushLocked(d.state)
			d.mu.Unlock()
			d.reporter.Publish(v)
			w.Stop()
			return
		}
		var doc *docstore.Document
		if res.Snapshot.Exists {
			doc = &docstore.Document{ID: res.Snapshot.ID, Fields: res.Snapshot.Fields}
		}
		d.mu.Lock()
		if d.gen != gen || d.closed {
			d.mu.Unlock()
			return
		}
		// A snapshot of a missing document is settled state, not loading.
		d.state = DocState{Doc: doc}
		d.pushLocked(d.state)
		d.mu.Unlock()
	}
}

func (d *Document) pushLocked(st DocState) {
	if d.closed {
		return
	}
	select {
	case <-d.updates:
	default:
	}
	select {
	case d.updates <- st:
	default:
	}
}

type pathError struct{ p docstore.Path }

func (e *pathError) Error() string {
	return "livequery: " + e.p.String() + " is not a document path"
}

func (e *pathError) Unwrap() error { return docstore.ErrInvalidPath }
