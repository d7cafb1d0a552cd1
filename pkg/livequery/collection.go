// Package livequery keeps client-side state synchronized with a docstore
// collection or document. A subscription owns one watcher at a time and
// exposes its state machine (loading, data, or error) through Current
// and a coalesced Updates channel. Watcher failures become permission
// violations: stored as the subscription's error state and published on
// the event bus, the two places the application reads diagnostics from.
package livequery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lyralabs/lyra/pkg/auth"
	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/eventbus"
	"github.com/lyralabs/lyra/pkg/rules"
)

// ErrClosed reports SetQuery/SetPath on a closed subscription.
var ErrClosed = errors.New("livequery: closed")

// Redundant SetQuery calls with a structurally identical descriptor are
// deduplicated; at this count the subscription logs a warning that the
// caller rebuilds the descriptor on every evaluation instead of reusing it.
const churnWarnAfter = 3

// Options carries the collaborators a subscription reports through.
// Bus and Identity may be nil: violations are then kept in subscription
// state only, with an unknown actor.
type Options struct {
	Bus      *eventbus.Bus
	Identity auth.Identity
	// DatabaseID overrides the database segment in violation paths.
	DatabaseID string
	Logger     *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) reporter(l *slog.Logger) *rules.Reporter {
	return rules.NewReporter(o.Identity, o.Bus,
		rules.WithDatabaseID(o.DatabaseID),
		rules.WithLogger(l))
}

// State is a collection subscription's externally visible state. At rest
// exactly one of Loading, Docs, or Err is meaningful. Docs is replaced
// wholesale on every snapshot and must be treated as read-only.
type State struct {
	Docs    []docstore.Document
	Loading bool
	Err     error
}

// Collection follows one query at a time. Setting a new descriptor tears
// the previous watcher down before opening the next; setting a
// structurally identical one is a no-op. Safe for concurrent use, though
// descriptors are normally driven from a single goroutine.
type Collection struct {
	store    docstore.Store
	reporter *rules.Reporter
	logger   *slog.Logger

	mu       sync.Mutex
	query    docstore.Query
	key      string
	hasQuery bool
	state    State
	cancel   context.CancelFunc
	gen      int
	churn    int
	warned   bool
	updates  chan State
	closed   bool
}

// NewCollection returns a subscription with no descriptor: state is
// (nil, false, nil) until SetQuery is called.
func NewCollection(store docstore.Store, opts Options) *Collection {
	l := opts.logger()
	return &Collection{
		store:    store,
		reporter: opts.reporter(l),
		logger:   l,
		updates:  make(chan State, 1),
	}
}

// Current returns the present state.
func (c *Collection) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates delivers state changes, coalesced latest-wins: a slow reader
// observes the newest state, not every intermediate one. The channel
// closes when the subscription is closed.
func (c *Collection) Updates() <-chan State {
	return c.updates
}

// SetQuery changes the descriptor. The zero Query clears it: the watcher
// stops and state resets to (nil, false, nil). A query structurally equal
// to the current one keeps the existing watcher. Anything else stops the
// previous watcher, enters the loading state, and opens a new one.
func (c *Collection) SetQuery(q docstore.Query) error {
	if q.IsZero() {
		return c.clear()
	}
	if err := q.Validate(); err != nil {
		return err
	}
	key := q.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.hasQuery && c.key == key {
		c.churn++
		warn := c.churn >= churnWarnAfter && !c.warned
		if warn {
			c.warned = true
		}
		n := c.churn
		c.mu.Unlock()
		if warn {
			c.logger.Warn("query descriptor rebuilt without change on every evaluation; reuse one descriptor value",
				"query", key, "redundant_sets", n)
		}
		return nil
	}
	prevCancel := c.cancel
	c.cancel = nil
	c.gen++
	gen := c.gen
	c.churn = 0
	c.warned = false
	c.query = q
	c.key = key
	c.hasQuery = true
	// Keep stale docs visible while the new result set loads.
	c.state = State{Docs: c.state.Docs, Loading: true}
	c.pushLocked(c.state)
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w, err := c.store.WatchQuery(ctx, q)
	if err != nil {
		cancel()
		c.mu.Lock()
		if c.gen == gen && !c.closed {
			c.state = State{Err: err}
			c.pushLocked(c.state)
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		cancel()
		w.Stop()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	go c.consume(gen, q, w)
	return nil
}

func (c *Collection) clear() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prevCancel := c.cancel
	c.cancel = nil
	c.gen++
	c.query = docstore.Query{}
	c.key = ""
	c.hasQuery = false
	c.churn = 0
	c.warned = false
	c.state = State{}
	c.pushLocked(c.state)
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	return nil
}

// Close stops the watcher and closes Updates. Idempotent.
func (c *Collection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.cancel = nil
	close(c.updates)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (c *Collection) consume(gen int, q docstore.Query, w docstore.QueryWatcher) {
	for res := range w.Results() {
		if res.Err != nil {
			// Identity lookup and bus publish happen outside the lock;
			// subscribers may call back into this subscription.
			v := c.reporter.Build(context.Background(), docstore.MethodList, q.Path, nil)
			c.mu.Lock()
			if c.gen != gen || c.closed {
				c.mu.Unlock()
				return
			}
			c.state = State{Err: v}
			c.pushLocked(c.state)
			c.mu.Unlock()
			c.reporter.Publish(v)
			w.Stop()
			return
		}
		c.mu.Lock()
		if c.gen != gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.state = State{Docs: res.Snapshot.Docs}
		c.pushLocked(c.state)
		c.mu.Unlock()
	}
}

// pushLocked replaces any unread update with st. Caller holds c.mu.
func (c *Collection) pushLocked(st State) {
	if c.closed {
		return
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- st:
	default:
	}
}
