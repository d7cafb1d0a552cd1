// Package llm defines the minimal chat-generation contract the tutoring
// flows run against, plus a registry of named provider factories so the
// daemon can pick a backend from configuration.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Chat roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// GenerateResult carries the model's text plus token usage when the
// provider reports it (zero otherwise).
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM is a single-request chat completion backend. No streaming, retries,
// or timeouts here; callers own deadlines through ctx.
type LLM interface {
	// Name returns the provider name (e.g. "openai").
	Name() string
	Generate(ctx context.Context, messages []Message, opts map[string]any) (GenerateResult, error)
}

// Factory constructs an LLM from provider-specific config.
// Common keys: "api_key", "model".
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a provider factory. Providers register themselves
// from init so importing an adapter package is enough to enable it.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Range iterates all registered factories.
func Range(fn func(name string, f Factory)) {
	regMu.RLock()
	defer regMu.RUnlock()
	for n, f := range factories {
		fn(n, f)
	}
}
