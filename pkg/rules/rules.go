// Package rules builds the permission-violation records Lyra surfaces when
// a store operation is rejected. A Violation mirrors the request a
// security-rules engine evaluated: who acted, which method, on which fully
// qualified path, with what payload. Violations double as errors and as
// event payloads on the bus under EventViolation.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lyralabs/lyra/pkg/auth"
	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/eventbus"
)

// EventViolation is the bus event name violations are published under.
const EventViolation = "permission-error"

// DefaultDatabaseID is the database segment used in qualified paths when
// none is configured.
const DefaultDatabaseID = "(default)"

// AuthSnapshot is a point-in-time copy of the actor's identity, taken when
// the violation was built. Nil means the actor was unknown: signed out, or
// the identity lookup itself failed.
type AuthSnapshot struct {
	UID           string
	DisplayName   string
	Email         string
	EmailVerified bool
	Providers     []auth.ProviderInfo
}

// SnapshotUser copies u into an AuthSnapshot; nil in, nil out.
func SnapshotUser(u *auth.User) *AuthSnapshot {
	if u == nil {
		return nil
	}
	s := &AuthSnapshot{
		UID:           u.UID,
		DisplayName:   u.DisplayName,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
	if u.Providers != nil {
		s.Providers = make([]auth.ProviderInfo, len(u.Providers))
		copy(s.Providers, u.Providers)
	}
	return s
}

// Violation is one rejected store operation. Immutable once built.
type Violation struct {
	Auth     *AuthSnapshot
	Method   docstore.Method
	Path     string // fully qualified, see Qualify
	Resource map[string]any
	Time     time.Time
}

func (v *Violation) Error() string {
	actor := "no actor"
	if v.Auth != nil {
		actor = "uid " + v.Auth.UID
	}
	return fmt.Sprintf("permission denied: %s %s (%s)", v.Method, v.Path, actor)
}

// Qualify renders a store path the way a rules engine addresses it:
// /databases/<databaseID>/documents/<path>.
func Qualify(databaseID string, p docstore.Path) string {
	if databaseID == "" {
		databaseID = DefaultDatabaseID
	}
	return "/databases/" + databaseID + "/documents/" + p.String()
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithDatabaseID overrides the database segment of qualified paths.
func WithDatabaseID(id string) ReporterOption {
	return func(r *Reporter) {
		if id != "" {
			r.databaseID = id
		}
	}
}

// WithLogger sets the logger for identity-lookup failures.
func WithLogger(l *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the violation timestamp source.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// Reporter builds violations against a fixed identity source and publishes
// them on a bus. Both collaborators may be nil: a nil identity reports an
// unknown actor, a nil bus turns Publish into a no-op.
type Reporter struct {
	identity   auth.Identity
	bus        *eventbus.Bus
	databaseID string
	logger     *slog.Logger
	now        func() time.Time
}

// NewReporter wires a reporter to its identity source and bus.
func NewReporter(identity auth.Identity, bus *eventbus.Bus, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		identity:   identity,
		bus:        bus,
		databaseID: DefaultDatabaseID,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build constructs a violation without publishing it. The identity is
// snapshotted now; if the lookup fails the violation simply carries no
// actor, it never fails to build.
func (r *Reporter) Build(ctx context.Context, method docstore.Method, p docstore.Path, resource map[string]any) *Violation {
	var snap *AuthSnapshot
	if r.identity != nil {
		u, err := r.identity.CurrentUser(ctx)
		if err != nil {
			r.logger.Debug("identity lookup failed while building violation", "method", string(method), "path", p.String(), "error", err)
		} else {
			snap = SnapshotUser(u)
		}
	}
	return &Violation{
		Auth:     snap,
		Method:   method,
		Path:     Qualify(r.databaseID, p),
		Resource: docstore.CloneFields(resource),
		Time:     r.now(),
	}
}

// Publish puts an already built violation on the bus.
func (r *Reporter) Publish(v *Violation) {
	if r.bus == nil || v == nil {
		return
	}
	r.bus.Publish(EventViolation, v)
}

// Report builds and publishes in one step, returning the record.
func (r *Reporter) Report(ctx context.Context, method docstore.Method, p docstore.Path, resource map[string]any) *Violation {
	v := r.Build(ctx, method, p, resource)
	r.Publish(v)
	return v
}

// DatabaseID returns the configured database segment.
func (r *Reporter) DatabaseID() string { return r.databaseID }
