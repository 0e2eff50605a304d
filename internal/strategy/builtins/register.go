package builtins

import "backlab/internal/strategy"

// NewRegistry returns a strategy registry pre-loaded with every built-in
// strategy. Each worker builds its own instances from these factories at
// task start.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("sma-cross", NewSMACross)
	r.Register("mtf-momentum", NewMTFMomentum)
	return r
}
