//go:build integration

package gemini

import (
	"context"
	"os"
	"testing"

	"github.com/lyralabs/lyra/pkg/adapters/llm"
)

func TestGeminiGenerate(t *testing.T) {
	if os.Getenv("GOOGLE_API_KEY") == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a terse math tutor."},
		{Role: llm.RoleUser, Content: "What is 7 times 8? Answer with the number only."},
	}
	res, err := m.Generate(ctx, msgs, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text == "" {
		t.Fatal("empty response text")
	}
}
