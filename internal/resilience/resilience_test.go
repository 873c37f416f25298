package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"transient wrapper", NewTransientError(errors.New("rate limited"), 429), true},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError(errors.New("overloaded"), 503)), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"dns message", errors.New("dial tcp: lookup api.example.com: no such host"), true},
		{"io timeout message", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("dashboard: %w", &NotFoundError{Entity: "company", ID: 7})
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("company not found")))
	assert.Equal(t, "company not found", (&NotFoundError{Entity: "company", ID: 7}).Error())
}

func TestBackoffDelayGrowth(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2.0}

	assert.Equal(t, time.Second, cfg.Delay(0))
	assert.Equal(t, 2*time.Second, cfg.Delay(1))
	assert.Equal(t, 8*time.Second, cfg.Delay(3))
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2.0}

	assert.Equal(t, time.Minute, cfg.Delay(20))
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := DefaultBackoff()

	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		assert.GreaterOrEqual(t, d, 22500*time.Millisecond)
		assert.LessOrEqual(t, d, 37500*time.Millisecond)
	}
}

func TestBackoffDefaults(t *testing.T) {
	var cfg BackoffConfig

	d := cfg.Delay(0)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 30*time.Minute)
}
