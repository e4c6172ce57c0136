package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordpress-plugin-generator/models"
)

func newTestGenerator(stream streamFunc) (*Generator, *[]time.Duration) {
	var sleeps []time.Duration
	return &Generator{
		model:     anthropic.ModelClaudeSonnet4_5_20250929,
		maxTokens: 1024,
		stream:    stream,
		baseDelay: time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}, &sleeps
}

func TestGenerateRetriesInitialRequestWithBackoff(t *testing.T) {
	calls := 0
	g, sleeps := newTestGenerator(func(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		onDelta("```php\n<?php echo 1;\n```")
		return nil
	})

	var streamed string
	reply, err := g.Generate(context.Background(), []models.ChatMessage{{Role: "user", Content: "hello"}}, func(s string) { streamed += s })
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
	assert.Equal(t, reply, streamed)
	assert.Equal(t, "<?php echo 1;", ExtractCode(reply))
}

func TestGenerateGivesUpAfterThreeAttempts(t *testing.T) {
	calls := 0
	g, _ := newTestGenerator(func(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) error {
		calls++
		return errors.New("overloaded")
	})

	_, err := g.Generate(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestGenerateDoesNotRetryAfterText(t *testing.T) {
	calls := 0
	g, _ := newTestGenerator(func(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) error {
		calls++
		onDelta("partial")
		return errors.New("stream dropped")
	})

	reply, err := g.Generate(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "partial", reply)
}

func TestExtractCode(t *testing.T) {
	reply := "Here is your plugin:\n\n```php\n<?php\n/* Plugin Name: X */\n```\n\nEnjoy."
	assert.Equal(t, "<?php\n/* Plugin Name: X */", ExtractCode(reply))
	assert.Equal(t, "<?php echo 1;", ExtractCode("  <?php echo 1;  "))
}
