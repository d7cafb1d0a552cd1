package openai

import (
	"context"
	"fmt"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
)

const defaultModel = "gpt-5-nano"

type client struct {
	c     oa.Client
	model string
}

func (c *client) Name() string { return "openai" }

func (c *client) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := opts["model"].(string); ok && v != "" {
		model = v
	}

	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			mm = append(mm, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			mm = append(mm, oa.AssistantMessage(m.Content))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}

	resp, err := c.c.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: mm,
	})
	if err != nil {
		return llm.GenerateResult{}, err
	}
	var out string
	if len(resp.Choices) > 0 {
		out = resp.Choices[0].Message.Content
	}
	return llm.GenerateResult{
		Text:         out,
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
		Model:        model,
	}, nil
}

// Factory creates an OpenAI client. cfg keys: api_key (falls back to
// OPENAI_API_KEY), model.
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &client{c: oa.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

func init() {
	_ = llm.Register("openai", Factory)
}
