// Command lyrad runs the Lyra tutoring daemon: an HTTP API over the
// document store plus the tutoring flows, or an MCP stdio server with -mcp.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
	_ "github.com/lyralabs/lyra/pkg/adapters/llm/gemini"
	_ "github.com/lyralabs/lyra/pkg/adapters/llm/openai"
	"github.com/lyralabs/lyra/pkg/auth"
	"github.com/lyralabs/lyra/pkg/config"
	"github.com/lyralabs/lyra/pkg/docstore"
	"github.com/lyralabs/lyra/pkg/docstore/memstore"
	"github.com/lyralabs/lyra/pkg/docstore/sqlstore"
	"github.com/lyralabs/lyra/pkg/errmodel"
	"github.com/lyralabs/lyra/pkg/eventbus"
	"github.com/lyralabs/lyra/pkg/lyra"
	"github.com/lyralabs/lyra/pkg/mcpserver"
	"github.com/lyralabs/lyra/pkg/otelinit"
	"github.com/lyralabs/lyra/pkg/rules"
	"github.com/lyralabs/lyra/pkg/tutor"
	"github.com/lyralabs/lyra/pkg/tutor/history"
	"github.com/lyralabs/lyra/pkg/tutor/prompts"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var (
		showVersion bool
		addr        string
		configPath  string
		mcpMode     bool
	)
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&addr, "addr", "", "http listen address (overrides config)")
	flag.StringVar(&configPath, "config", getEnv("LYRA_CONFIG", ""), "path to lyra.yaml")
	flag.BoolVar(&mcpMode, "mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()

	if showVersion {
		fmt.Printf("lyrad %s (commit=%s, date=%s)\n", version, commit, date)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(addr, configPath, mcpMode, logger); err != nil {
		logger.Error("lyrad exited", "error", err)
		os.Exit(1)
	}
}

func run(addr, configPath string, mcpMode bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	shutdown, err := otelinit.Init(ctx, otelinit.Config{
		ServiceName:    "lyrad",
		ServiceVersion: version,
		UseStdout:      cfg.Telemetry.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	model, err := buildModel(ctx, cfg)
	if err != nil {
		return err
	}

	promptStore := prompts.NewStore()
	engineOpts := []tutor.Option{tutor.WithPrompts(promptStore)}
	if cfg.PromptBudget > 0 {
		wopts := []history.Option{history.WithBudget(cfg.PromptBudget)}
		if est, err := history.NewTiktokenEstimator("gpt-4o"); err == nil {
			wopts = append(wopts, history.WithEstimator(est))
		} else {
			logger.Warn("tiktoken encoding unavailable, estimating by rune count", "error", err)
		}
		engineOpts = append(engineOpts, tutor.WithWindower(history.New(wopts...)))
	}
	engine := tutor.New(model, engineOpts...)

	if mcpMode {
		logger.Info("serving MCP tools on stdio", "provider", model.Name())
		return mcpserver.New(engine, version).Run(ctx)
	}

	store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	client := lyra.NewClient(store, engine,
		lyra.WithIdentity(headerIdentity()),
		lyra.WithPromptStore(promptStore),
		lyra.WithLogger(logger),
	)
	defer client.Close()

	srv := &server{
		client: client,
		engine: engine,
		ring:   newViolationRing(client.Bus(), 100),
		logger: logger,
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: otelhttp.NewHandler(buildMux(srv), "lyrad"),
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", storeKind(cfg.DatabaseURL), "provider", model.Name())
		errc <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

// openStore selects the backend from the DSN; empty runs in-memory.
func openStore(ctx context.Context, databaseURL string) (docstore.Store, error) {
	if databaseURL == "" {
		return memstore.New(), nil
	}
	st, err := sqlstore.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func storeKind(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}
	return "sql"
}

// buildModel resolves the configured provider from the adapter registry.
func buildModel(ctx context.Context, cfg *config.Config) (llm.LLM, error) {
	factory, ok := llm.Resolve(cfg.Provider)
	if !ok {
		var names []string
		llm.Range(func(name string, _ llm.Factory) { names = append(names, name) })
		sort.Strings(names)
		return nil, fmt.Errorf("unknown provider %q (registered: %s)", cfg.Provider, strings.Join(names, ", "))
	}
	mcfg := map[string]any{}
	if cfg.Model != "" {
		mcfg["model"] = cfg.Model
	}
	return factory(ctx, mcfg)
}

func getEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type actorKey struct{}

// headerIdentity resolves the actor stored by withActor. This is dev-grade
// identity: the daemon trusts X-Lyra-UID, there is no token verification.
func headerIdentity() auth.Identity {
	return auth.IdentityFunc(func(ctx context.Context) (*auth.User, error) {
		u, _ := ctx.Value(actorKey{}).(*auth.User)
		return u, nil
	})
}

func userFromHeaders(r *http.Request) *auth.User {
	uid := r.Header.Get("X-Lyra-UID")
	if uid == "" {
		return nil
	}
	return &auth.User{
		UID:         uid,
		DisplayName: r.Header.Get("X-Lyra-Name"),
		Email:       r.Header.Get("X-Lyra-Email"),
	}
}

// withActor resolves the dev identity headers once per request.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := userFromHeaders(r); u != nil {
			r = r.WithContext(context.WithValue(r.Context(), actorKey{}, u))
		}
		next.ServeHTTP(w, r)
	})
}

// violationRing keeps the most recent denied writes for /api/violations.
type violationRing struct {
	mu   sync.Mutex
	max  int
	list []*rules.Violation
}

func newViolationRing(bus *eventbus.Bus, max int) *violationRing {
	r := &violationRing{max: max}
	bus.Subscribe(rules.EventViolation, func(payload any) {
		if v, ok := payload.(*rules.Violation); ok {
			r.add(v)
		}
	})
	return r
}

func (r *violationRing) add(v *rules.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, v)
	if len(r.list) > r.max {
		r.list = r.list[len(r.list)-r.max:]
	}
}

func (r *violationRing) recent() []*rules.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*rules.Violation, len(r.list))
	copy(out, r.list)
	return out
}

type server struct {
	client *lyra.Client
	engine *tutor.Engine
	ring   *violationRing
	logger *slog.Logger
}

func buildMux(s *server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/flows/tutor", s.handleTutorFlow)
	mux.HandleFunc("POST /api/flows/title", s.handleTitleFlow)
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("POST /api/sessions/send", s.handleSend)
	mux.HandleFunc("PUT /api/tutor-settings", s.handleSaveSettings)
	mux.HandleFunc("GET /api/tutor-settings", s.handleGetSettings)
	mux.HandleFunc("GET /api/violations", s.handleViolations)
	return withActor(mux)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type turnBody struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (s *server) handleTutorFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string     `json:"subject"`
		Student string     `json:"student"`
		Message string     `json:"message"`
		History []turnBody `json:"history"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", nil))
		return
	}
	turns := make([]history.Turn, 0, len(req.History))
	for _, t := range req.History {
		turns = append(turns, history.Turn{Role: t.Role, Text: t.Text})
	}
	reply, err := s.engine.Tutor(r.Context(), tutor.TutorRequest{
		Subject: req.Subject,
		Student: req.Student,
		Message: req.Message,
		History: turns,
	})
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":         reply.Text,
		"promptVersion": reply.PromptVersion,
		"model":         reply.Model,
		"tokens":        reply.Tokens,
	})
}

func (s *server) handleTitleFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", nil))
		return
	}
	reply, err := s.engine.Title(r.Context(), tutor.TitleRequest{Subject: req.Subject, Message: req.Message})
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": reply.Title})
}

func (s *server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", nil))
		return
	}
	sess, err := s.client.StartSession(r.Context(), req.Subject)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        sess.ID,
		"subject":   sess.Subject,
		"title":     sess.Title,
		"createdAt": sess.CreatedAt,
		"updatedAt": sess.UpdatedAt,
	})
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", nil))
		return
	}
	msg, err := s.client.Send(r.Context(), req.SessionID, req.Text)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        msg.ID,
		"role":      msg.Role,
		"text":      msg.Text,
		"createdAt": msg.CreatedAt,
	})
}

func settingsView(set prompts.Settings) map[string]any {
	v := map[string]any{
		"subject": set.Subject,
		"system":  set.System,
		"version": set.Version,
	}
	if set.Tone != "" {
		v["tone"] = set.Tone
	}
	if len(set.Meta) > 0 {
		v["meta"] = set.Meta
	}
	return v
}

func (s *server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string            `json:"subject"`
		System  string            `json:"system"`
		Tone    string            `json:"tone"`
		Meta    map[string]string `json:"meta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", nil))
		return
	}
	saved, err := s.client.SaveTutorSettings(r.Context(), prompts.Settings{
		Subject: req.Subject,
		System:  req.System,
		Tone:    req.Tone,
		Meta:    req.Meta,
	})
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView(saved))
}

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	subject := r.URL.Query().Get("subject")
	if uid == "" {
		if u, _ := r.Context().Value(actorKey{}).(*auth.User); u != nil {
			uid = u.UID
		}
	}
	set, err := s.client.TutorSettings(r.Context(), uid, subject)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView(set))
}

func (s *server) handleViolations(w http.ResponseWriter, r *http.Request) {
	type view struct {
		Time   time.Time `json:"time"`
		UID    string    `json:"uid,omitempty"`
		Method string    `json:"method"`
		Path   string    `json:"path"`
	}
	vs := s.ring.recent()
	out := make([]view, 0, len(vs))
	for _, v := range vs {
		item := view{Time: v.Time, Method: string(v.Method), Path: v.Path}
		if v.Auth != nil {
			item.UID = v.Auth.UID
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": out})
}
