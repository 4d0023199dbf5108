package throttle

import (
	"math/rand"
	"testing"
)

func TestNewBatcher(t *testing.T) {
	b := NewBatcher(DefaultConfig())
	if b.Size != 500 || b.Ceiling != 50_000 || b.Floor != 10 || b.Errors != 0 {
		t.Fatalf("unexpected initial state: %+v", b)
	}

	clamped := NewBatcher(BatchConfig{Initial: 5, Max: 100, Min: 10})
	if clamped.Size != 10 {
		t.Errorf("initial below floor: got size %d, want 10", clamped.Size)
	}
}

func TestBatcher_OnSuccess(t *testing.T) {
	b := Batcher{Size: 500, Ceiling: 1500, Floor: 10, Errors: 3}

	b = b.OnSuccess()
	if b.Size != 1000 || b.Errors != 0 {
		t.Errorf("after first success: %+v", b)
	}

	b = b.OnSuccess()
	if b.Size != 1500 {
		t.Errorf("growth must cap at ceiling: got %d", b.Size)
	}
}

func TestBatcher_OnRangeError(t *testing.T) {
	tests := []struct {
		name        string
		in          Batcher
		wantSize    uint64
		wantCeiling uint64
		wantOK      bool
	}{
		{"halves", Batcher{Size: 500, Ceiling: 50_000, Floor: 10}, 250, 250, true},
		{"clamps to floor", Batcher{Size: 15, Ceiling: 50_000, Floor: 10}, 10, 10, true},
		{"fatal at floor", Batcher{Size: 10, Ceiling: 10, Floor: 10}, 10, 10, false},
	}

	for _, tt := range tests {
		got, ok := tt.in.OnRangeError()
		if ok != tt.wantOK || got.Size != tt.wantSize || got.Ceiling != tt.wantCeiling {
			t.Errorf("%s: got %+v ok=%v", tt.name, got, ok)
		}
		if got.Errors != tt.in.Errors+1 {
			t.Errorf("%s: error count not incremented", tt.name)
		}
	}
}

func TestBatcher_OnRateLimit(t *testing.T) {
	in := Batcher{Size: 800, Ceiling: 1000, Floor: 10, Errors: 1}
	got := in.OnRateLimit()
	if got.Size != in.Size || got.Ceiling != in.Ceiling || got.Errors != 2 {
		t.Errorf("rate limit must only count: %+v", got)
	}
}

func TestBatcher_OnTransient(t *testing.T) {
	got := Batcher{Size: 800, Ceiling: 1000, Floor: 10}.OnTransient()
	if got.Size != 400 || got.Ceiling != 1000 || got.Errors != 1 {
		t.Errorf("transient: %+v", got)
	}

	got = Batcher{Size: 12, Ceiling: 1000, Floor: 10}.OnTransient()
	if got.Size != 10 {
		t.Errorf("transient must respect floor: %+v", got)
	}
}

func TestBatcher_End(t *testing.T) {
	b := Batcher{Size: 100}
	if got := b.End(100, 1000); got != 199 {
		t.Errorf("End(100, 1000) = %d, want 199", got)
	}
	if got := b.End(150, 200); got != 200 {
		t.Errorf("End(150, 200) = %d, want 200", got)
	}
	huge := Batcher{Size: ^uint64(0)}
	if got := huge.End(10, 20); got != 20 {
		t.Errorf("overflowing End = %d, want 20", got)
	}
}

// Ceiling never rises and Size stays within [Floor, Ceiling] for any
// sequence of outcomes.
func TestBatcher_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		b := NewBatcher(DefaultConfig())
		for step := 0; step < 300; step++ {
			prevCeiling := b.Ceiling
			switch rng.Intn(4) {
			case 0:
				b = b.OnSuccess()
			case 1:
				next, ok := b.OnRangeError()
				if !ok {
					if b.Size != b.Floor {
						t.Fatalf("range error refused above floor: %+v", b)
					}
					continue
				}
				b = next
			case 2:
				b = b.OnRateLimit()
			case 3:
				b = b.OnTransient()
			}

			if b.Ceiling > prevCeiling {
				t.Fatalf("ceiling rose from %d to %d", prevCeiling, b.Ceiling)
			}
			if b.Size > b.Ceiling || b.Size < b.Floor {
				t.Fatalf("size %d outside [%d, %d]", b.Size, b.Floor, b.Ceiling)
			}
		}
	}
}
