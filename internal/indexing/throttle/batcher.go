package throttle

// Batcher is the adaptive window state of one fetch invocation.
//
// Size grows by doubling after every success and never exceeds Ceiling.
// Ceiling only moves down, on range errors, so a provider limit learned
// once is respected for the rest of the fetch. Transient errors shrink
// Size but leave Ceiling alone. Errors counts consecutive failures of any
// kind.
//
// All transitions are pure and return the next state.
type Batcher struct {
	Size    uint64
	Ceiling uint64
	Floor   uint64
	Errors  int
}

// NewBatcher returns the initial state for cfg.
func NewBatcher(cfg BatchConfig) Batcher {
	floor := max(cfg.Min, 1)
	ceiling := max(cfg.Max, floor)
	return Batcher{
		Size:    min(max(cfg.Initial, floor), ceiling),
		Ceiling: ceiling,
		Floor:   floor,
	}
}

// End returns the last block of the next request starting at from,
// clamped to to.
func (b Batcher) End(from, to uint64) uint64 {
	end := from + b.Size - 1
	if end < from || end > to {
		return to
	}
	return end
}

// OnSuccess doubles Size up to Ceiling and clears the error count.
func (b Batcher) OnSuccess() Batcher {
	b.Errors = 0
	b.Size = min(b.Size*2, b.Ceiling)
	return b
}

// OnRangeError lowers Ceiling to half the current Size (never below
// Floor) and resets Size to it. It reports false when Size was already at
// Floor: the provider cannot serve even the smallest window.
func (b Batcher) OnRangeError() (Batcher, bool) {
	b.Errors++
	if b.Size <= b.Floor {
		return b, false
	}
	b.Ceiling = max(b.Size/2, b.Floor)
	b.Size = b.Ceiling
	return b, true
}

// OnRateLimit keeps the window and counts the error.
func (b Batcher) OnRateLimit() Batcher {
	b.Errors++
	return b
}

// OnTransient halves Size (never below Floor) and counts the error.
func (b Batcher) OnTransient() Batcher {
	b.Errors++
	b.Size = max(b.Size/2, b.Floor)
	return b
}
