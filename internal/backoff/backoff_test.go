package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "zero attempt falls back to base", attempt: 0, want: 30 * time.Second},
		{name: "first attempt", attempt: 1, want: 30 * time.Second},
		{name: "second attempt doubles", attempt: 2, want: 1 * time.Minute},
		{name: "third attempt", attempt: 3, want: 2 * time.Minute},
		{name: "fifth attempt", attempt: 5, want: 8 * time.Minute},
		{name: "capped at one hour", attempt: 10, want: 1 * time.Hour},
		{name: "huge attempt stays capped", attempt: 500, want: 1 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.attempt))
		})
	}
}

func TestDelayMonotonicAndPositive(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		d := Delay(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}
