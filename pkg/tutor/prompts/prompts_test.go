package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/lyralabs/lyra/pkg/docstore"
)

const mathSystem = "You tutor {{.Subject}}. Address {{.Student}} in a {{.Tone}} tone.\nContext so far:\n{{.History}}"

func TestStoreVersioningAndLint(t *testing.T) {
	st := NewStore()

	// lint failure: empty subject
	if _, issues, err := st.Save(Settings{System: "x"}); !errors.Is(err, ErrLintFailed) {
		t.Fatalf("expected lint failure, got %v", err)
	} else if len(issues) == 0 {
		t.Fatal("expected issues")
	}

	v1, issues, err := st.Save(Settings{Subject: "math", System: mathSystem, Tone: "encouraging"})
	if err != nil {
		t.Fatalf("save v1: %v (%v)", err, issues)
	}
	if v1.Version != 1 {
		t.Fatalf("v1 version=%d", v1.Version)
	}

	v2, _, err := st.Save(Settings{Subject: "math", System: mathSystem + "\nKeep answers short."})
	if err != nil {
		t.Fatal(err)
	}
	if v2.Version != 2 {
		t.Fatalf("v2 version=%d", v2.Version)
	}

	got, ok := st.Get("math", 0)
	if !ok || got.Version != 2 {
		t.Fatalf("get latest=%+v ok=%v", got, ok)
	}
	got1, ok := st.Get("math", 1)
	if !ok || got1.Version != 1 {
		t.Fatalf("get v1=%+v ok=%v", got1, ok)
	}
	if _, ok := st.Get("math", 9); ok {
		t.Fatal("found a version that was never saved")
	}
	if _, ok := st.Get("art", 0); ok {
		t.Fatal("found settings for an unknown subject")
	}

	all := st.List("math")
	if len(all) != 2 || all[0].Version != 1 || all[1].Version != 2 {
		t.Fatalf("list=%+v", all)
	}
	if subs := st.Subjects(); len(subs) != 1 || subs[0] != "math" {
		t.Fatalf("subjects=%v", subs)
	}
}

func TestLintRules(t *testing.T) {
	cases := []struct {
		name string
		s    Settings
		rule string
	}{
		{"missing subject", Settings{System: "ok"}, "subject.required"},
		{"missing system", Settings{Subject: "math"}, "system.required"},
		{"broken template", Settings{Subject: "math", System: "{{.Subject"}, "system.template"},
		{"unknown placeholder", Settings{Subject: "math", System: "{{.Sekrit}}"}, "system.placeholders"},
		{"secret content", Settings{Subject: "math", System: "use key sk-abc123"}, "security.secrets"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			issues := Lint(c.s)
			for _, is := range issues {
				if is.Rule == c.rule {
					return
				}
			}
			t.Fatalf("issues %+v missing rule %q", issues, c.rule)
		})
	}
	if issues := Lint(Settings{Subject: "math", System: mathSystem}); len(issues) != 0 {
		t.Fatalf("clean settings flagged: %+v", issues)
	}
}

func TestRender(t *testing.T) {
	s := Settings{Subject: "math", System: mathSystem, Tone: "patient"}
	out, err := s.Render(Data{
		Subject: "math",
		Student: "Ada",
		Message: "What is a derivative?",
		History: "student: hi\ntutor: hello",
		Tone:    "patient",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"You tutor math.", "Address Ada", "patient tone", "student: hi"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, out)
		}
	}
}

func TestDiff(t *testing.T) {
	st := NewStore()
	if _, _, err := st.Save(Settings{Subject: "math", System: "line one\nline two"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := st.Save(Settings{Subject: "math", System: "line one\nline 2"}); err != nil {
		t.Fatal(err)
	}
	d := st.Diff("math", 1, 2)
	if !strings.Contains(d, "-line two") || !strings.Contains(d, "+line 2") {
		t.Fatalf("diff = %q", d)
	}
	if d := st.Diff("math", 1, 1); d != "" {
		t.Fatalf("identical versions diff = %q", d)
	}
	if d := st.Diff("math", 1, 9); d != "" {
		t.Fatalf("missing version diff = %q", d)
	}
}

func TestValidateDocument(t *testing.T) {
	good := map[string]any{
		"subject": "math",
		"system":  "You tutor {{.Subject}}.",
		"tone":    "kind",
		"version": 3,
		"meta":    map[string]any{"author": "t1"},
	}
	if err := ValidateDocument(good); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	cases := []map[string]any{
		{"system": "x"},                           // missing subject
		{"subject": "math"},                       // missing system
		{"subject": "", "system": "x"},            // empty subject
		{"subject": "math", "system": "x", "version": 0},          // version below minimum
		{"subject": "math", "system": "x", "extra": true},         // unknown field
		{"subject": "math", "system": "x", "meta": map[string]any{"n": 1}}, // non-string meta
	}
	for i, fields := range cases {
		if err := ValidateDocument(fields); err == nil {
			t.Errorf("case %d: invalid document accepted: %+v", i, fields)
		}
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := Settings{
		Subject: "science",
		System:  "You tutor {{.Subject}} for {{.Student}}.",
		Tone:    "curious",
		Version: 2,
		Meta:    map[string]string{"author": "teacher-1"},
	}
	doc := docstore.Document{ID: "science", Fields: s.Fields()}
	got, err := FromDocument(doc)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if got.Subject != s.Subject || got.System != s.System || got.Tone != s.Tone || got.Version != 2 {
		t.Fatalf("round trip = %+v", got)
	}
	if got.Meta["author"] != "teacher-1" {
		t.Fatalf("meta = %+v", got.Meta)
	}

	// Version arrives as float64 when the document came through JSON.
	doc.Fields["version"] = float64(2)
	got, err = FromDocument(doc)
	if err != nil || got.Version != 2 {
		t.Fatalf("float version: %+v, %v", got, err)
	}
}
