package prompts

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Store is an in-memory versioned settings store, keyed by subject.
// Versions ascend from 1 and are immutable once saved.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Settings // subject -> versions (ascending)
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{data: make(map[string][]Settings)} }

// Save lints s and appends it as the subject's next version. The stored
// copy, with its assigned version, is returned; lint failures return the
// issues alongside ErrLintFailed.
func (st *Store) Save(s Settings) (Settings, []Issue, error) {
	if issues := Lint(s); len(issues) > 0 {
		return Settings{}, issues, ErrLintFailed
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	versions := st.data[s.Subject]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	saved := Settings{Subject: s.Subject, System: s.System, Tone: s.Tone, Version: next}
	if s.Meta != nil {
		saved.Meta = make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			saved.Meta[k] = v
		}
	}
	st.data[s.Subject] = append(versions, saved)
	return saved, nil, nil
}

// Get retrieves a specific version; version 0 means latest.
func (st *Store) Get(subject string, version int) (Settings, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	versions := st.data[subject]
	if len(versions) == 0 {
		return Settings{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Settings{}, false
}

// List returns a subject's versions in ascending order.
func (st *Store) List(subject string) []Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]Settings(nil), st.data[subject]...)
}

// Subjects returns the subjects with at least one saved version, sorted.
func (st *Store) Subjects() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.data))
	for s := range st.data {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Diff renders a unified diff of the system prompt between two versions,
// or "" when either version is missing or the texts are identical.
func (st *Store) Diff(subject string, v1, v2 int) string {
	a, ok1 := st.Get(subject, v1)
	b, ok2 := st.Get(subject, v2)
	if !ok1 || !ok2 {
		return ""
	}
	return UnifiedDiff(a.System, b.System)
}

// UnifiedDiff returns a minimal unified diff between two texts.
func UnifiedDiff(a, b string) string {
	if a == b {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteString("--- a\n")
	buf.WriteString("+++ b\n")
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")
	i, j := 0, 0
	for i < len(al) || j < len(bl) {
		if i < len(al) && j < len(bl) && al[i] == bl[j] {
			i++
			j++
			continue
		}
		if i < len(al) {
			fmt.Fprintf(&buf, "-%s\n", al[i])
			i++
		}
		if j < len(bl) {
			fmt.Fprintf(&buf, "+%s\n", bl[j])
			j++
		}
	}
	return buf.String()
}
