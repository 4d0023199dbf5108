package throttle

// BatchConfig bounds the block-range window used for eth_getLogs.
type BatchConfig struct {
	Initial uint64 // First request width (default: 500)
	Max     uint64 // Starting ceiling (default: 50,000)
	Min     uint64 // Floor; a range error at this width is fatal (default: 10)
}

// DefaultConfig returns the window bounds that work across public providers.
func DefaultConfig() BatchConfig {
	return BatchConfig{
		Initial: 500,
		Max:     50_000,
		Min:     10,
	}
}
