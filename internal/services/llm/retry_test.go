package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(errors.New("Error 429, Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("exceeded your current quota")))
	assert.True(t, IsRateLimitError(errors.New(`{"type":"rate_limit_error"}`)))
	assert.False(t, IsRateLimitError(errors.New("500 internal")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: slow down. Please retry in 45.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 45500*time.Millisecond, ExtractRetryDelay(err))
	assert.Equal(t, 12*time.Second, ExtractRetryDelay(errors.New("retryDelay: 12s")))
	assert.Zero(t, ExtractRetryDelay(errors.New("no hint")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	assert.Equal(t, 45*time.Second, config.CalculateBackoff(0, 0))
	assert.Equal(t, time.Duration(float64(45*time.Second)*1.5), config.CalculateBackoff(1, 0))
	assert.Equal(t, 90*time.Second, config.CalculateBackoff(5, 0), "capped")
	assert.Equal(t, 15*time.Second, config.CalculateBackoff(0, 10*time.Second), "api delay plus buffer")
}

func TestRetry(t *testing.T) {
	config := &RetryConfig{MaxRetries: 2, InitialBackoff: time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 2}
	logger := arbor.NewLogger()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var waits []time.Duration
		wait := func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}
		calls := 0
		text, err := retry(context.Background(), config, wait, logger, "test", func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("429 RESOURCE_EXHAUSTED")
			}
			if calls == 2 {
				return "", errors.New("connection reset")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, waits)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		_, err := retry(context.Background(), config, func(context.Context, time.Duration) error { return nil }, logger, "test", func(context.Context) (string, error) {
			calls++
			return "", boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when waiting is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := retry(ctx, config, func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}, logger, "test", func(context.Context) (string, error) {
			calls++
			return "", errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
