package gemini

import (
	"context"
	"fmt"
	"os"

	genai "google.golang.org/genai"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
)

const defaultModel = "gemini-2.5-flash-lite"

type client struct {
	c     *genai.Client
	model string
}

func (c *client) Name() string { return "gemini" }

func (c *client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}

	// System turns become the system instruction; the rest map onto the
	// user/model roles the API expects.
	var cfg *genai.GenerateContentConfig
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if cfg == nil {
				cfg = &genai.GenerateContentConfig{}
			}
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = &genai.Content{}
			}
			cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts, &genai.Part{Text: m.Content})
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	res, err := c.c.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// Factory creates a Gemini client. cfg keys: api_key (falls back to
// GOOGLE_API_KEY), model.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &client{c: c, model: model}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
