package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nur/internal/config"
)

func TestBackoff_ExponentialWithCapAndJitter(t *testing.T) {
	cfg := config.QueueConfig{RetryBackoffBase: 1, RetryBackoffCap: 60}

	for attempt := 1; attempt <= 10; attempt++ {
		d := Backoff(attempt, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 60*time.Second)
	}
}

func TestBackoff_CapsAtConfiguredCeiling(t *testing.T) {
	cfg := config.QueueConfig{RetryBackoffBase: 1, RetryBackoffCap: 5}
	for i := 0; i < 50; i++ {
		d := Backoff(8, cfg)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestBackoff_DefaultsWhenUnset(t *testing.T) {
	d := Backoff(1, config.QueueConfig{})
	assert.LessOrEqual(t, d, time.Second)
}
