// Package auth abstracts "who is acting": components that need the current
// user depend on the Identity interface rather than on any particular
// authentication system. A nil user with a nil error means nobody is
// signed in; an error means the identity subsystem itself is unavailable.
package auth

import "context"

// ProviderInfo describes one sign-in provider linked to a user.
type ProviderInfo struct {
	ProviderID  string
	UID         string
	DisplayName string
	Email       string
}

// User is the authenticated actor.
type User struct {
	UID           string
	DisplayName   string
	Email         string
	EmailVerified bool
	Providers     []ProviderInfo
}

// Clone returns a deep copy so callers can hold a User without aliasing.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Providers != nil {
		out.Providers = make([]ProviderInfo, len(u.Providers))
		copy(out.Providers, u.Providers)
	}
	return &out
}

// Identity resolves the current actor.
type Identity interface {
	// CurrentUser returns the signed-in user, (nil, nil) when nobody is
	// signed in, or an error when the lookup itself failed.
	CurrentUser(ctx context.Context) (*User, error)
}

// IdentityFunc adapts a function to the Identity interface.
type IdentityFunc func(ctx context.Context) (*User, error)

func (f IdentityFunc) CurrentUser(ctx context.Context) (*User, error) { return f(ctx) }

// Static is an Identity fixed at construction, for tests, tools, and
// single-actor deployments.
type Static struct {
	user *User
}

// NewStatic returns an identity that always reports u. A nil u models a
// signed-out actor.
func NewStatic(u *User) *Static {
	return &Static{user: u.Clone()}
}

func (s *Static) CurrentUser(context.Context) (*User, error) {
	return s.user.Clone(), nil
}
