// Package regressor provides the pluggable local-model interface leaves of
// the expert tree fit on their training buffer (spec §3 "regressor", §6
// "prediction_model").
package regressor

// Regressor is the pluggable per-leaf model contract. Implementations must
// be safe to Clone independently: split commits deep-copy a parent's
// regressor into both children (spec §4.2, §9 "Ownership of child state at
// split"), and the copies must not share mutable state afterward.
type Regressor interface {
	// Fit trains the model on a full training buffer, X -> Y row-aligned.
	// Returns errs.ErrRegressionFailure if the buffer cannot be fit (e.g.
	// rank deficiency); a failed Fit must leave the model's prior
	// prediction behavior unchanged (spec §7 "RegressionFailure").
	Fit(x, y [][]float64) error

	// Predict returns the model's estimate for a single input row. Callers
	// must check Fitted first; Predict on an unfit model is undefined.
	Predict(x []float64) ([]float64, error)

	// Fitted reports whether Fit has ever succeeded.
	Fitted() bool

	// Clone returns an independent copy carrying the same fitted
	// parameters (or none, if unfit).
	Clone() Regressor
}

// Factory constructs a fresh, unfit Regressor. The root leaf (and every leaf
// rebuilt from a snapshot) starts from a Factory; split-created children
// instead Clone their parent's regressor (spec §6 "prediction_model").
type Factory func() Regressor
