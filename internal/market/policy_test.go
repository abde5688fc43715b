package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/igefined/market-feed/internal/config"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: -1, expected: time.Second},
		{attempt: 0, expected: time.Second},
		{attempt: 1, expected: 2 * time.Second},
		{attempt: 2, expected: 4 * time.Second},
		{attempt: 4, expected: 16 * time.Second},
		{attempt: 5, expected: 30 * time.Second},
		{attempt: 40, expected: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %v, expected %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestRetryPolicyAllow(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.True(t, policy.Allow(0))
	assert.True(t, policy.Allow(2))
	assert.False(t, policy.Allow(3))
	assert.False(t, policy.Allow(4))
}

func TestPolicyFromConfig(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), PolicyFromConfig(config.MarketConfig{}))

	policy := PolicyFromConfig(config.MarketConfig{
		MaxRetries: 5,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   time.Second,
	})
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.Delay(1))
	assert.Equal(t, time.Second, policy.Delay(3))
}
