// Package enhance turns an approved recommendation into improved content.
package enhance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tbcv/tbcv/internal/types"
)

// DefaultModel is the model used when no override is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// GetModel returns the enhancement model, checking TBCV_MODEL env var first
func GetModel() string {
	if model := os.Getenv("TBCV_MODEL"); model != "" {
		return model
	}
	return DefaultModel
}

// Rewriter produces an enhanced version of content guided by a
// recommendation. Implementations must be side-effect free: writing the
// result anywhere is the caller's job.
type Rewriter interface {
	Rewrite(ctx context.Context, content string, rec *types.Recommendation) (string, error)
}

// ContentSink receives enhanced content when a recommendation is applied.
type ContentSink interface {
	Write(ctx context.Context, locator, content string) error
}

// FileSink writes applied content to the filesystem at the artifact's locator.
type FileSink struct{}

func (FileSink) Write(_ context.Context, locator, content string) error {
	if err := os.WriteFile(locator, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", locator, err)
	}
	return nil
}

// AnthropicRewriter rewrites content with the Anthropic API.
type AnthropicRewriter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicRewriter creates a rewriter. An empty API key falls back to
// the ANTHROPIC_API_KEY environment variable; an empty model uses GetModel.
func NewAnthropicRewriter(apiKey, model string) *AnthropicRewriter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = GetModel()
	}
	return &AnthropicRewriter{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (r *AnthropicRewriter) Rewrite(ctx context.Context, content string, rec *types.Recommendation) (string, error) {
	prompt := buildRewritePrompt(content, rec)

	response, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = stripCodeFence(text)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return text, nil
}

func buildRewritePrompt(content string, rec *types.Recommendation) string {
	var b strings.Builder
	b.WriteString("You are improving a piece of content. Apply exactly this recommendation and nothing else.\n\n")
	b.WriteString("Recommendation: " + rec.Title + "\n")
	if rec.Description != "" {
		b.WriteString("Details: " + rec.Description + "\n")
	}
	b.WriteString("\nReturn ONLY the full revised content, with no commentary and no code fences.\n\n")
	b.WriteString("Content:\n")
	b.WriteString(content)
	return b.String()
}

// stripCodeFence removes a single wrapping markdown fence if the model added
// one despite instructions.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[len(lines)-1], "```") {
		return s
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// LocalRewriter is a deterministic offline rewriter: it annotates the content
// with the recommendation instead of calling a model. Used in tests and when
// no API key is configured.
type LocalRewriter struct{}

func (LocalRewriter) Rewrite(_ context.Context, content string, rec *types.Recommendation) (string, error) {
	note := fmt.Sprintf("<!-- %s -->", rec.Title)
	if strings.HasSuffix(content, "\n") {
		return content + note + "\n", nil
	}
	return content + "\n" + note + "\n", nil
}
