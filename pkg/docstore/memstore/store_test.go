package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lyralabs/lyra/pkg/docstore"
)

func TestCreateWithCollectionPathAssignsID(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	doc, err := s.Create(ctx, docstore.MustParsePath("users"), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("Create did not assign an ID")
	}
	p, err := docstore.MustParsePath("users").Child(doc.ID)
	if err != nil {
		t.Fatalf("Child: %v", err)
	}
	snap, err := s.GetDocument(ctx, p)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !snap.Exists || snap.Fields["name"] != "Ada" {
		t.Fatalf("read back: %+v", snap)
	}
}

func TestCreateWithDocumentPath(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	p := docstore.MustParsePath("users/u1")

	if _, err := s.Create(ctx, p, map[string]any{"name": "Ada"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(ctx, p, map[string]any{"name": "Bob"})
	if !errors.Is(err, docstore.ErrExists) {
		t.Fatalf("second Create: %v, want ErrExists", err)
	}
}

func TestSetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	p := docstore.MustParsePath("users/u1")

	if err := s.Update(ctx, p, map[string]any{"x": 1}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Update absent: %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, p, map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Update(ctx, p, map[string]any{"b": 3, "c": 4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, err := s.GetDocument(ctx, p)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if snap.Fields["a"] != 1 || snap.Fields["b"] != 3 || snap.Fields["c"] != 4 {
		t.Fatalf("merged fields = %+v", snap.Fields)
	}

	// Set replaces wholesale, it does not merge.
	if err := s.Set(ctx, p, map[string]any{"only": true}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap, _ = s.GetDocument(ctx, p)
	if len(snap.Fields) != 1 || snap.Fields["only"] != true {
		t.Fatalf("after overwrite: %+v", snap.Fields)
	}

	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	snap, _ = s.GetDocument(ctx, p)
	if snap.Exists {
		t.Fatal("document still exists after Delete")
	}
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	coll := docstore.MustParsePath("users/u1/chatSessions")

	seed := []map[string]any{
		{"subject": "math", "updatedAt": "2025-03-01T10:00:00Z"},
		{"subject": "science", "updatedAt": "2025-03-01T11:00:00Z"},
		{"subject": "math", "updatedAt": "2025-03-01T12:00:00Z"},
	}
	for _, f := range seed {
		if _, err := s.Create(ctx, coll, f); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	q := docstore.Query{
		Path:    coll,
		Filters: []docstore.Filter{{Field: "subject", Op: docstore.OpEqual, Value: "math"}},
		OrderBy: []docstore.Order{{Field: "updatedAt", Descending: true}},
	}
	snap, err := s.RunQuery(ctx, q)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if len(snap.Docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(snap.Docs))
	}
	if snap.Docs[0].Fields["updatedAt"] != "2025-03-01T12:00:00Z" {
		t.Errorf("descending order broken: %+v", snap.Docs[0].Fields)
	}
}

func TestSnapshotsDoNotAliasStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	p := docstore.MustParsePath("users/u1")

	in := map[string]any{"nested": map[string]any{"k": "v"}}
	if err := s.Set(ctx, p, in); err != nil {
		t.Fatalf("Set: %v", err)
	}
	in["nested"].(map[string]any)["k"] = "caller-mutated"

	snap, _ := s.GetDocument(ctx, p)
	if snap.Fields["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("store aliased the caller's map")
	}

	snap.Fields["nested"].(map[string]any)["k"] = "reader-mutated"
	again, _ := s.GetDocument(ctx, p)
	if again.Fields["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("snapshot aliased store internals")
	}
}

func TestAccessHookDeniesOperations(t *testing.T) {
	ctx := context.Background()
	deny := func(_ context.Context, method docstore.Method, p docstore.Path, _ map[string]any) error {
		return &docstore.PermissionError{Method: method, Path: p}
	}
	s := New(WithAccess(deny))
	defer s.Close()
	p := docstore.MustParsePath("users/u1")

	if _, err := s.GetDocument(ctx, p); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("GetDocument: %v", err)
	}
	if _, err := s.RunQuery(ctx, docstore.Query{Path: docstore.MustParsePath("users")}); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("RunQuery: %v", err)
	}
	if _, err := s.Create(ctx, p, nil); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("Create: %v", err)
	}
	if err := s.Set(ctx, p, nil); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("Set: %v", err)
	}
	if err := s.Update(ctx, p, nil); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("Update: %v", err)
	}
	if err := s.Delete(ctx, p); !errors.Is(err, docstore.ErrPermissionDenied) {
		t.Errorf("Delete: %v", err)
	}
}

func TestWatchDeliversDenialOnChannel(t *testing.T) {
	ctx := context.Background()
	deny := func(_ context.Context, method docstore.Method, p docstore.Path, _ map[string]any) error {
		return &docstore.PermissionError{Method: method, Path: p}
	}
	s := New(WithAccess(deny))
	defer s.Close()

	w, err := s.WatchQuery(ctx, docstore.Query{Path: docstore.MustParsePath("users/u1/chatSessions")})
	if err != nil {
		t.Fatalf("WatchQuery should register despite the denial, got %v", err)
	}
	defer w.Stop()

	select {
	case res := <-w.Results():
		if !errors.Is(res.Err, docstore.ErrPermissionDenied) {
			t.Fatalf("result = %+v, want permission denial", res)
		}
		var perr *docstore.PermissionError
		if !errors.As(res.Err, &perr) || perr.Method != docstore.MethodList {
			t.Fatalf("denial method = %+v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}
}

func TestWatchQueryFollowsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()
	coll := docstore.MustParsePath("users/u1/chatSessions")

	w, err := s.WatchQuery(ctx, docstore.Query{Path: coll, OrderBy: []docstore.Order{{Field: "subject"}}})
	if err != nil {
		t.Fatalf("WatchQuery: %v", err)
	}
	defer w.Stop()

	next := func() docstore.QueryResult {
		select {
		case res, ok := <-w.Results():
			if !ok {
				t.Fatal("results closed")
			}
			return res
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
			return docstore.QueryResult{}
		}
	}

	if res := next(); res.Err != nil || len(res.Snapshot.Docs) != 0 {
		t.Fatalf("initial: %+v", res)
	}

	if _, err := s.Create(ctx, coll, map[string]any{"subject": "math"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		res := next()
		if res.Err != nil {
			t.Fatalf("result error: %v", res.Err)
		}
		if len(res.Snapshot.Docs) == 1 && res.Snapshot.Docs[0].Fields["subject"] == "math" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("never saw the created document")
		default:
		}
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close twice: %v", err)
	}
	if _, err := s.GetDocument(ctx, docstore.MustParsePath("users/u1")); !errors.Is(err, docstore.ErrClosed) {
		t.Errorf("GetDocument after Close: %v", err)
	}
	if err := s.Set(ctx, docstore.MustParsePath("users/u1"), nil); !errors.Is(err, docstore.ErrClosed) {
		t.Errorf("Set after Close: %v", err)
	}
}
