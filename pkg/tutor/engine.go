// Package tutor runs Lyra's LLM flows: answering a student inside a chat
// session and naming a session from its opening message. The engine renders
// the subject's teacher-configured system prompt, windows the transcript to
// a token budget, and calls a single-request llm backend.
package tutor

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
	"github.com/lyralabs/lyra/pkg/errmodel"
	"github.com/lyralabs/lyra/pkg/tutor/history"
	"github.com/lyralabs/lyra/pkg/tutor/prompts"
)

// defaultSystem is the fallback prompt used for subjects no teacher has
// customized yet.
const defaultSystem = `You are Lyra, a friendly tutor helping {{.Student}} learn {{.Subject}}.
Guide the student toward the answer with questions and hints instead of handing over solutions.
Keep replies short and conversational.
Conversation so far:
{{.History}}`

// titleSystem names a session from its opening message. Not teacher
// configurable.
const titleSystem = `You name tutoring chat sessions. Reply with a title of at most five words for the conversation. No quotes, no trailing punctuation.`

// TutorRequest is one student message inside a session.
type TutorRequest struct {
	Subject string
	Student string
	Message string
	History []history.Turn
}

// TutorReply is the model's answer plus the prompt and token accounting
// the daemon logs.
type TutorReply struct {
	Text          string
	PromptVersion int // 0 means the built-in default prompt
	Model         string
	Tokens        int
}

// TitleRequest names a new session from its opening message.
type TitleRequest struct {
	Subject string
	Message string
}

// TitleReply carries the generated session title.
type TitleReply struct {
	Title string
}

// Engine coordinates prompt resolution, history windowing, and generation.
type Engine struct {
	model    llm.LLM
	prompts  *prompts.Store
	windower *history.Windower
	tracer   trace.Tracer
}

// Option configures the Engine at construction time.
type Option func(*Engine)

// WithPrompts sets the store of teacher prompt settings. Without one every
// subject uses the built-in default prompt.
func WithPrompts(st *prompts.Store) Option {
	return func(e *Engine) {
		if st != nil {
			e.prompts = st
		}
	}
}

// WithWindower sets the history windower. Defaults to an effectively
// unlimited budget.
func WithWindower(w *history.Windower) Option {
	return func(e *Engine) {
		if w != nil {
			e.windower = w
		}
	}
}

// WithTracerProvider routes spans through tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer("tutor/engine")
		}
	}
}

// New constructs an Engine around the given backend.
func New(model llm.LLM, opts ...Option) *Engine {
	e := &Engine{
		model:    model,
		windower: history.New(),
		tracer:   otel.Tracer("tutor/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tutor answers one student message.
// Pipeline: resolve the subject's prompt settings (built-in default when no
// teacher customized the subject), window the transcript to the token
// budget, render the system template, generate.
func (e *Engine) Tutor(ctx context.Context, req TutorRequest) (TutorReply, error) {
	ctx, span := e.tracer.Start(ctx, "tutor.Tutor", trace.WithAttributes(
		attribute.String("tutor.subject", req.Subject),
	))
	defer span.End()

	if req.Subject == "" {
		return TutorReply{}, errmodel.Validation("missing_subject", "subject is required", nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return TutorReply{}, errmodel.Validation("missing_message", "message is required", nil)
	}

	settings := e.resolve(req.Subject)
	span.SetAttributes(attribute.Int("tutor.prompt_version", settings.Version))

	turns, wlog := e.windower.Window(req.History)
	student := req.Student
	if student == "" {
		student = "the student"
	}
	system, err := settings.Render(prompts.Data{
		Subject: req.Subject,
		Student: student,
		Message: req.Message,
		History: history.Transcript(turns),
		Tone:    settings.Tone,
	})
	if err != nil {
		span.RecordError(err)
		return TutorReply{}, errmodel.Validation("prompt_render", "system prompt did not render: "+err.Error(), map[string]any{
			"subject": req.Subject,
			"version": settings.Version,
		})
	}

	res, err := e.model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: req.Message},
	}, nil)
	if err != nil {
		span.RecordError(err)
		return TutorReply{}, errmodel.Model("generate_failed", "tutor generation failed", map[string]any{
			"subject":  req.Subject,
			"provider": e.model.Name(),
		}, err)
	}
	span.SetAttributes(
		attribute.Int("tutor.tokens_total", res.TotalTokens),
		attribute.Int("tutor.history_dropped", wlog.Dropped),
	)

	return TutorReply{
		Text:          strings.TrimSpace(res.Text),
		PromptVersion: settings.Version,
		Model:         res.Model,
		Tokens:        res.TotalTokens,
	}, nil
}

// Title names a session from its opening student message.
func (e *Engine) Title(ctx context.Context, req TitleRequest) (TitleReply, error) {
	ctx, span := e.tracer.Start(ctx, "tutor.Title", trace.WithAttributes(
		attribute.String("tutor.subject", req.Subject),
	))
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		return TitleReply{}, errmodel.Validation("missing_message", "message is required", nil)
	}

	res, err := e.model.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: titleSystem},
		{Role: llm.RoleUser, Content: req.Message},
	}, nil)
	if err != nil {
		span.RecordError(err)
		return TitleReply{}, errmodel.Model("title_failed", "title generation failed", map[string]any{
			"provider": e.model.Name(),
		}, err)
	}
	return TitleReply{Title: cleanTitle(res.Text)}, nil
}

// resolve returns the latest settings for subject, or the built-in default
// when the subject was never customized.
func (e *Engine) resolve(subject string) prompts.Settings {
	if e.prompts != nil {
		if s, ok := e.prompts.Get(subject, 0); ok {
			return s
		}
	}
	return prompts.Settings{Subject: subject, System: defaultSystem}
}

// cleanTitle normalizes model output into a one-line title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!")
	if s == "" {
		return "New chat"
	}
	if r := []rune(s); len(r) > 64 {
		s = string(r[:64])
	}
	return s
}
