package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"wordpress-plugin-generator/config"
	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

const (
	generateAttempts  = 3
	generateBaseDelay = time.Second
)

const pluginSystemPrompt = `You are an expert WordPress plugin developer.
Write a complete, secure, single-file WordPress plugin for the user's request.
Rules:
- Start the file with a standard plugin header comment (Plugin Name, Description, Version, Author, Text Domain).
- Prefix every function, class, constant and option with the plugin slug, using underscores.
- Escape all output and sanitize all input; use nonces for forms.
- Do not close the final PHP tag.
Answer with a short explanation followed by the full code in one php code block.`

// streamFunc sends one streaming request and forwards text deltas.
type streamFunc func(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) error

// Generator streams plugin code from the Anthropic Messages API.
type Generator struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	stream    streamFunc
	sleep     func(ctx context.Context, d time.Duration) error
	baseDelay time.Duration
}

func NewGenerator(cfg config.LLMConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// retries are handled by Generate so they can stop once text has streamed
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}

	g := &Generator{
		client:    &client,
		model:     model,
		maxTokens: int64(cfg.MaxTokens),
		sleep:     sleepContext,
		baseDelay: generateBaseDelay,
	}
	g.stream = g.streamMessages
	return g, nil
}

// Generate streams a reply for the conversation. The initial request is
// retried with exponential backoff, up to three attempts, as long as no text
// has been delivered yet. The full reply text is returned.
func (g *Generator) Generate(ctx context.Context, conversation []models.ChatMessage, onDelta func(string)) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages:  toAnthropicMessages(conversation),
		System:    []anthropic.TextBlockParam{{Text: pluginSystemPrompt}},
	}

	var reply strings.Builder
	emit := func(text string) {
		reply.WriteString(text)
		if onDelta != nil {
			onDelta(text)
		}
	}

	delay := g.baseDelay
	for attempt := 1; ; attempt++ {
		err := g.stream(ctx, params, emit)
		if err == nil {
			return reply.String(), nil
		}
		if reply.Len() > 0 || attempt >= generateAttempts || !retryable(ctx, err) {
			return reply.String(), fmt.Errorf("code generation failed after %d attempt(s): %w", attempt, err)
		}

		utils.LogWarn("Code generation request failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
}

func (g *Generator) streamMessages(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) error {
	stream := g.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				onDelta(delta.Text)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}

func toAnthropicMessages(conversation []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

// ExtractCode returns the first fenced code block of a reply, or the whole
// reply when it has no fence.
func ExtractCode(reply string) string {
	return UnwrapFences(reply)
}
