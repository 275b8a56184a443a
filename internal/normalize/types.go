package normalize

import "time"

// Options bounds the work the normalizer is allowed to do. Untrusted input
// shapes both knobs: MaxEntities caps HTML entity expansion, TimeBudget caps
// wall-clock spend across all steps.
type Options struct {
	MaxEntities int
	TimeBudget  time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntities: 1000,
		TimeBudget:  100 * time.Millisecond,
	}
}

// Result is the outcome of the normalization stage. It is created once per
// request and never mutated afterwards.
type Result struct {
	Text        string
	Steps       []string
	EntityCount int
	Anomalies   []string
}
