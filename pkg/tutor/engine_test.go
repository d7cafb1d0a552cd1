package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
	"github.com/lyralabs/lyra/pkg/errmodel"
	"github.com/lyralabs/lyra/pkg/tutor/history"
	"github.com/lyralabs/lyra/pkg/tutor/prompts"
)

type fakeLLM struct {
	fn func(msgs []llm.Message) (llm.GenerateResult, error)
}

func (f fakeLLM) Name() string { return "fake" }

func (f fakeLLM) Generate(_ context.Context, msgs []llm.Message, _ map[string]any) (llm.GenerateResult, error) {
	return f.fn(msgs)
}

func TestTutor_DefaultPrompt(t *testing.T) {
	var got []llm.Message
	e := New(fakeLLM{fn: func(msgs []llm.Message) (llm.GenerateResult, error) {
		got = msgs
		return llm.GenerateResult{Text: "  Try splitting the fraction.  ", TotalTokens: 42, Model: "fake-1"}, nil
	}})

	reply, err := e.Tutor(t.Context(), TutorRequest{
		Subject: "math",
		Student: "Ada",
		Message: "How do I simplify 4/8?",
	})
	if err != nil {
		t.Fatalf("Tutor: %v", err)
	}
	if reply.Text != "Try splitting the fraction." {
		t.Fatalf("text=%q", reply.Text)
	}
	if reply.PromptVersion != 0 || reply.Tokens != 42 || reply.Model != "fake-1" {
		t.Fatalf("reply=%+v", reply)
	}
	if len(got) != 2 || got[0].Role != llm.RoleSystem || got[1].Role != llm.RoleUser {
		t.Fatalf("messages=%+v", got)
	}
	if !strings.Contains(got[0].Content, "learn math") || !strings.Contains(got[0].Content, "Ada") {
		t.Fatalf("system prompt: %q", got[0].Content)
	}
	if got[1].Content != "How do I simplify 4/8?" {
		t.Fatalf("user turn: %q", got[1].Content)
	}
}

func TestTutor_UsesTeacherSettings(t *testing.T) {
	st := prompts.NewStore()
	saved, _, err := st.Save(prompts.Settings{
		Subject: "math",
		System:  "Math drills for {{.Student}} in a {{.Tone}} tone.\n{{.History}}",
		Tone:    "socratic",
	})
	if err != nil {
		t.Fatal(err)
	}

	var system string
	e := New(fakeLLM{fn: func(msgs []llm.Message) (llm.GenerateResult, error) {
		system = msgs[0].Content
		return llm.GenerateResult{Text: "ok"}, nil
	}}, WithPrompts(st))

	reply, err := e.Tutor(t.Context(), TutorRequest{Subject: "math", Student: "Ada", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.PromptVersion != saved.Version {
		t.Fatalf("version=%d want %d", reply.PromptVersion, saved.Version)
	}
	if !strings.Contains(system, "Math drills for Ada") || !strings.Contains(system, "socratic tone") {
		t.Fatalf("system prompt: %q", system)
	}
}

func TestTutor_WindowsHistory(t *testing.T) {
	var system string
	e := New(fakeLLM{fn: func(msgs []llm.Message) (llm.GenerateResult, error) {
		system = msgs[0].Content
		return llm.GenerateResult{Text: "ok"}, nil
	}}, WithWindower(history.New(history.WithBudget(20))))

	_, err := e.Tutor(t.Context(), TutorRequest{
		Subject: "math",
		Message: "next",
		History: []history.Turn{
			{Role: "student", Text: "a very old question that is long"}, // over budget, dropped
			{Role: "tutor", Text: "recent hint"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(system, "tutor: recent hint") {
		t.Fatalf("system missing recent turn: %q", system)
	}
	if strings.Contains(system, "very old question") {
		t.Fatalf("system kept dropped turn: %q", system)
	}
}

func TestTutor_Errors(t *testing.T) {
	boom := errors.New("upstream down")
	e := New(fakeLLM{fn: func([]llm.Message) (llm.GenerateResult, error) {
		return llm.GenerateResult{}, boom
	}})

	if _, err := e.Tutor(t.Context(), TutorRequest{Subject: "", Message: "hi"}); !errmodel.IsCategory(err, errmodel.CategoryValidation) {
		t.Fatalf("missing subject: %v", err)
	}
	if _, err := e.Tutor(t.Context(), TutorRequest{Subject: "math", Message: "   "}); !errmodel.IsCategory(err, errmodel.CategoryValidation) {
		t.Fatalf("blank message: %v", err)
	}
	_, err := e.Tutor(t.Context(), TutorRequest{Subject: "math", Message: "hi"})
	if !errmodel.IsCategory(err, errmodel.CategoryModel) {
		t.Fatalf("model failure: %v", err)
	}
	if ce := errmodel.From(err); ce.Code != "generate_failed" || len(ce.Causes) != 1 {
		t.Fatalf("envelope: %#v", ce)
	}
}

func TestTitle(t *testing.T) {
	e := New(fakeLLM{fn: func(msgs []llm.Message) (llm.GenerateResult, error) {
		if msgs[1].Content != "Why is the sky blue?" {
			t.Fatalf("user turn: %q", msgs[1].Content)
		}
		return llm.GenerateResult{Text: "\"Sky Color Basics.\"\nextra line"}, nil
	}})

	reply, err := e.Title(t.Context(), TitleRequest{Subject: "science", Message: "Why is the sky blue?"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Title != "Sky Color Basics" {
		t.Fatalf("title=%q", reply.Title)
	}

	if _, err := e.Title(t.Context(), TitleRequest{Message: " "}); !errmodel.IsCategory(err, errmodel.CategoryValidation) {
		t.Fatalf("blank message: %v", err)
	}
}

func TestCleanTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Plain Title  ", "Plain Title"},
		{"'Quoted'", "Quoted"},
		{"Trailing!", "Trailing"},
		{"First line\nsecond", "First line"},
		{"", "New chat"},
		{"\"\"", "New chat"},
		{strings.Repeat("x", 80), strings.Repeat("x", 64)},
	}
	for _, c := range cases {
		if got := cleanTitle(c.in); got != c.want {
			t.Errorf("cleanTitle(%q)=%q want %q", c.in, got, c.want)
		}
	}
}
