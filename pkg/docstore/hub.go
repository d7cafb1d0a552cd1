package docstore

import (
	"context"
	"sync"
)

// QueryFetchFunc evaluates a query against the backend's current state.
// Implementations must return copies that never alias internal storage.
type QueryFetchFunc func(ctx context.Context, q Query) (QuerySnapshot, error)

// DocumentFetchFunc reads a single document's current state.
type DocumentFetchFunc func(ctx context.Context, p Path) (DocumentSnapshot, error)

// WatchHub implements the watcher half of the Store contract for backends
// that can observe their own writes. A backend registers watchers with a
// fetch callback and calls Notify after each committed write; the hub
// re-evaluates affected watchers and delivers coalesced, latest-wins
// results on capacity-1 channels. One goroutine per watcher; a stalled
// consumer never blocks writers.
type WatchHub struct {
	mu      sync.Mutex
	nextID  int64
	queries map[int64]*queryWatcher
	docs    map[int64]*docWatcher
	closed  bool
}

// NewWatchHub returns an empty hub.
func NewWatchHub() *WatchHub {
	return &WatchHub{
		queries: make(map[int64]*queryWatcher),
		docs:    make(map[int64]*docWatcher),
	}
}

// WatchQuery registers a watcher that re-evaluates q via fetch. An initial
// result is delivered without waiting for a Notify. Fetch errors are
// delivered as results; the watcher stays registered so a later change can
// recover it.
func (h *WatchHub) WatchQuery(ctx context.Context, q Query, fetch QueryFetchFunc) QueryWatcher {
	wctx, cancel := context.WithCancel(ctx)
	w := &queryWatcher{
		hub:     h,
		q:       q,
		fetch:   fetch,
		ctx:     wctx,
		cancel:  cancel,
		results: make(chan QueryResult, 1),
		kick:    make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.nextID++
	w.id = h.nextID
	h.queries[w.id] = w
	closed := h.closed
	h.mu.Unlock()
	if closed {
		cancel()
	}
	go w.run()
	return w
}

// WatchDocument registers a watcher for a single document path.
func (h *WatchHub) WatchDocument(ctx context.Context, p Path, fetch DocumentFetchFunc) DocumentWatcher {
	wctx, cancel := context.WithCancel(ctx)
	w := &docWatcher{
		hub:     h,
		p:       p,
		fetch:   fetch,
		ctx:     wctx,
		cancel:  cancel,
		results: make(chan DocumentResult, 1),
		kick:    make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.nextID++
	w.id = h.nextID
	h.docs[w.id] = w
	closed := h.closed
	h.mu.Unlock()
	if closed {
		cancel()
	}
	go w.run()
	return w
}

// Notify wakes every watcher affected by a committed write at document
// path p: query watchers on p's collection and document watchers on p.
func (h *WatchHub) Notify(p Path) {
	collection := p.Parent()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.queries {
		if w.q.Path == collection {
			w.wake()
		}
	}
	for _, w := range h.docs {
		if w.p == p {
			w.wake()
		}
	}
}

// Close stops every watcher. The hub accepts no new work afterwards:
// watchers registered post-Close are cancelled immediately.
func (h *WatchHub) Close() {
	h.mu.Lock()
	h.closed = true
	cancels := make([]context.CancelFunc, 0, len(h.queries)+len(h.docs))
	for _, w := range h.queries {
		cancels = append(cancels, w.cancel)
	}
	for _, w := range h.docs {
		cancels = append(cancels, w.cancel)
	}
	h.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (h *WatchHub) dropQuery(id int64) {
	h.mu.Lock()
	delete(h.queries, id)
	h.mu.Unlock()
}

func (h *WatchHub) dropDoc(id int64) {
	h.mu.Lock()
	delete(h.docs, id)
	h.mu.Unlock()
}

type queryWatcher struct {
	hub     *WatchHub
	id      int64
	q       Query
	fetch   QueryFetchFunc
	ctx     context.Context
	cancel  context.CancelFunc
	results chan QueryResult
	kick    chan struct{}
}

func (w *queryWatcher) Results() <-chan QueryResult { return w.results }

func (w *queryWatcher) Stop() { w.cancel() }

func (w *queryWatcher) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *queryWatcher) run() {
	defer func() {
		w.hub.dropQuery(w.id)
		close(w.results)
	}()
	for {
		snap, err := w.fetch(w.ctx, w.q)
		if w.ctx.Err() != nil {
			return
		}
		var res QueryResult
		if err != nil {
			res = QueryResult{Err: err}
		} else {
			res = QueryResult{Snapshot: &snap}
		}
		deliver(w.results, res)
		select {
		case <-w.ctx.Done():
			return
		case <-w.kick:
		}
	}
}

type docWatcher struct {
	hub     *WatchHub
	id      int64
	p       Path
	fetch   DocumentFetchFunc
	ctx     context.Context
	cancel  context.CancelFunc
	results chan DocumentResult
	kick    chan struct{}
}

func (w *docWatcher) Results() <-chan DocumentResult { return w.results }

func (w *docWatcher) Stop() { w.cancel() }

func (w *docWatcher) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *docWatcher) run() {
	defer func() {
		w.hub.dropDoc(w.id)
		close(w.results)
	}()
	for {
		snap, err := w.fetch(w.ctx, w.p)
		if w.ctx.Err() != nil {
			return
		}
		var res DocumentResult
		if err != nil {
			res = DocumentResult{Err: err}
		} else {
			res = DocumentResult{Snapshot: &snap}
		}
		deliver(w.results, res)
		select {
		case <-w.ctx.Done():
			return
		case <-w.kick:
		}
	}
}

// deliver replaces any undelivered result with the newest one. The channel
// has capacity 1 and a single producer, so the drained slot cannot be
// refilled by anyone else before the send.
func deliver[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
