package routing

import (
	"testing"
	"time"
)

func TestBackoff_Ceiling(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{9, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := DefaultBackoff.Ceiling(tt.attempt); got != tt.want {
			t.Errorf("Ceiling(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_DelayBounds(t *testing.T) {
	noJitter := func(int64) int64 { return 0 }
	fullJitter := func(n int64) int64 { return n }
	overJitter := func(n int64) int64 { return n * 10 }

	if got := DefaultBackoff.Delay(1, noJitter); got != time.Second {
		t.Errorf("no jitter: got %v, want 1s", got)
	}
	if got := DefaultBackoff.Delay(1, fullJitter); got != 2*time.Second {
		t.Errorf("full jitter: got %v, want 2s", got)
	}
	if got := DefaultBackoff.Delay(1, overJitter); got != 2*time.Second {
		t.Errorf("jitter must be clamped: got %v", got)
	}

	for i := 0; i < 100; i++ {
		d := DefaultBackoff.Delay(3, nil)
		if d < 4*time.Second || d > 8*time.Second {
			t.Fatalf("random delay %v outside [4s, 8s]", d)
		}
	}
}
