package docstore

import (
	"fmt"
	"strings"
)

// Path identifies a collection or a document as a slash-separated sequence
// of segments, e.g. "users/u1/chatSessions/s1". An odd number of segments
// names a collection, an even number names a document. Path is a comparable
// value type; two paths are equal iff their canonical strings are equal.
type Path struct {
	raw string
}

// ParsePath parses and validates a slash-separated path.
// Segments must be non-empty; leading or trailing slashes are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" {
			return Path{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		}
	}
	return Path{raw: s}, nil
}

// MustParsePath is like ParsePath but panics on invalid input.
// Intended for paths built from literals.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Join builds a path from individual segments, validating each one.
func Join(segs ...string) (Path, error) {
	if len(segs) == 0 {
		return Path{}, fmt.Errorf("%w: no segments", ErrInvalidPath)
	}
	for _, seg := range segs {
		if seg == "" {
			return Path{}, fmt.Errorf("%w: empty segment", ErrInvalidPath)
		}
		if strings.Contains(seg, "/") {
			return Path{}, fmt.Errorf("%w: segment %q contains '/'", ErrInvalidPath, seg)
		}
	}
	return Path{raw: strings.Join(segs, "/")}, nil
}

// String returns the canonical slash-separated form.
func (p Path) String() string { return p.raw }

// IsZero reports whether p is the zero (absent) path.
func (p Path) IsZero() bool { return p.raw == "" }

// Collection reports whether p names a collection (odd segment count).
func (p Path) Collection() bool {
	return p.raw != "" && strings.Count(p.raw, "/")%2 == 0
}

// Document reports whether p names a document (even segment count).
func (p Path) Document() bool {
	return p.raw != "" && strings.Count(p.raw, "/")%2 == 1
}

// Segments returns the path split into its segments.
func (p Path) Segments() []string {
	if p.raw == "" {
		return nil
	}
	return strings.Split(p.raw, "/")
}

// ID returns the last segment: the document ID for a document path,
// the collection name for a collection path.
func (p Path) ID() string {
	if p.raw == "" {
		return ""
	}
	if i := strings.LastIndexByte(p.raw, '/'); i >= 0 {
		return p.raw[i+1:]
	}
	return p.raw
}

// Parent returns the path with the last segment removed,
// or the zero path if p has a single segment or is zero.
func (p Path) Parent() Path {
	i := strings.LastIndexByte(p.raw, '/')
	if i < 0 {
		return Path{}
	}
	return Path{raw: p.raw[:i]}
}

// Child extends p with one validated segment.
func (p Path) Child(seg string) (Path, error) {
	if seg == "" {
		return Path{}, fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.Contains(seg, "/") {
		return Path{}, fmt.Errorf("%w: segment %q contains '/'", ErrInvalidPath, seg)
	}
	if p.raw == "" {
		return Path{raw: seg}, nil
	}
	return Path{raw: p.raw + "/" + seg}, nil
}

// Split separates a document path into its collection path and document ID.
// It returns ok=false when p is not a document path.
func (p Path) Split() (collection Path, id string, ok bool) {
	if !p.Document() {
		return Path{}, "", false
	}
	return p.Parent(), p.ID(), true
}
