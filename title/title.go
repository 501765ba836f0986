// Package title derives short human-readable session titles from the first
// prompt of a conversation. A model-backed generator produces the good ones;
// a heuristic fallback keeps sessions nameable when no provider is configured
// or the model call fails.
package title

import (
	"context"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vikramships/coworker-core/config"
	"github.com/vikramships/coworker-core/logger"
)

// MaxTitleLength caps generated and heuristic titles.
const MaxTitleLength = 60

const systemPrompt = "Summarize the user's request as a short session title, " +
	"at most six words, no quotes, no trailing punctuation."

// Generator produces a session title from the opening prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelGenerator asks a chat model for a title via the configured provider.
// Any OpenAI-compatible endpoint works, including Anthropic-compatible
// gateways that speak the chat completions shape.
type ModelGenerator struct {
	client *openai.Client
	model  string
}

// NewModelGenerator builds a generator from a provider config. Returns nil if
// the provider has no API key, so callers can fall back to the heuristic.
func NewModelGenerator(p *config.Provider) *ModelGenerator {
	if p == nil || p.APIKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	model := p.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &ModelGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate asks the model for a title. The prompt is truncated so a pasted
// file does not blow up the request.
func (g *ModelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	const maxPromptChars = 2000
	if len(prompt) > maxPromptChars {
		prompt = prompt[:maxPromptChars]
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   32,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		logger.WithComponent("title").Warn("title generation returned no choices")
		return Heuristic(prompt), nil
	}

	title := clean(resp.Choices[0].Message.Content)
	if title == "" {
		return Heuristic(prompt), nil
	}
	return title, nil
}

// Heuristic derives a title from the prompt text itself: the first line,
// trimmed and truncated on a word boundary where possible.
func Heuristic(prompt string) string {
	line := prompt
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = clean(line)
	if line == "" {
		return "New Session"
	}
	if len(line) <= MaxTitleLength {
		return line
	}

	cut := line[:MaxTitleLength]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > MaxTitleLength/2 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + "…"
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".!")
	if len(s) > MaxTitleLength+3 {
		s = s[:MaxTitleLength] + "…"
	}
	return strings.TrimSpace(s)
}

var _ Generator = (*ModelGenerator)(nil)
