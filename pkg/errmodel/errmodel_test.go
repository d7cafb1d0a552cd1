package errmodel

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/rules"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation("missing", "field missing", map[string]any{"field": "subject"})
	if e.Category != CategoryValidation || e.Code != "missing" {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
}

func TestFrom_StoreErrors(t *testing.T) {
	cases := []struct {
		err      error
		category string
		code     string
		status   int
	}{
		{docstore.ErrNotFound, CategoryValidation, "not_found", 404},
		{fmt.Errorf("get profile: %w", docstore.ErrNotFound), CategoryValidation, "not_found", 404},
		{docstore.ErrExists, CategoryValidation, "conflict", 409},
		{docstore.ErrInvalidPath, CategoryValidation, "invalid_path", 400},
		{docstore.ErrClosed, CategoryStore, "closed", 503},
		{&docstore.PermissionError{Method: docstore.MethodList, Path: docstore.MustParsePath("users/u1/chatSessions")}, CategoryPolicy, "permission_denied", 403},
	}
	for _, c := range cases {
		e := From(c.err)
		if e.Category != c.category || e.Code != c.code {
			t.Errorf("From(%v) = %s/%s, want %s/%s", c.err, e.Category, e.Code, c.category, c.code)
		}
		if got := HTTPStatus(e); got != c.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.status)
		}
	}
}

func TestFromViolation(t *testing.T) {
	v := &rules.Violation{
		Auth:   &rules.AuthSnapshot{UID: "stu-1"},
		Method: docstore.MethodList,
		Path:   "/databases/(default)/documents/users/stu-1/chatSessions",
		Time:   time.Now(),
	}
	e := From(error(v))
	if e.Category != CategoryPolicy || e.Code != "permission_denied" {
		t.Fatalf("unexpected: %#v", e)
	}
	if e.Context["uid"] != "stu-1" || e.Context["method"] != "list" {
		t.Fatalf("context: %#v", e.Context)
	}
	if got := e.Context["path"]; got != v.Path {
		t.Fatalf("path: %v", got)
	}
	if HTTPStatus(e) != 403 {
		t.Fatalf("status=%d", HTTPStatus(e))
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"category\":\"validation\"") {
		t.Fatalf("body missing category: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}
