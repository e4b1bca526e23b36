// Package errs defines the sentinel error kinds shared across the engine,
// tree and transport layers (see spec §7).
package errs

import "errors"

var (
	// ErrContractViolation signals a type or arity mismatch between an
	// engine and its expert tree. Fatal: the engine aborts.
	ErrContractViolation = errors.New("cbla: contract violation")

	// ErrTreeCorruption signals an internal expert missing a child. Fatal:
	// the engine aborts and the supervisor preserves its last snapshot.
	ErrTreeCorruption = errors.New("cbla: expert tree corruption")

	// ErrTransportTimeout signals an input refresh did not return within
	// its deadline. Recoverable: callers reuse the prior state.
	ErrTransportTimeout = errors.New("cbla: transport timeout")

	// ErrStaleSample signals a snapshot reported fresh=false for a device.
	// Recoverable: callers reuse the prior state.
	ErrStaleSample = errors.New("cbla: stale sample")

	// ErrSplitRejected is not a true error: a split attempt failed a commit
	// rule and the leaf re-arms its lock count. Never propagated past the
	// tree package boundary.
	ErrSplitRejected = errors.New("cbla: split rejected")

	// ErrRegressionFailure signals the regressor rejected its training
	// buffer (e.g. rank deficiency). Treated as a no-op until next append.
	ErrRegressionFailure = errors.New("cbla: regression failure")
)

// Fatal reports whether err is one of the kinds that must abort the owning
// engine rather than be absorbed at the loop boundary.
func Fatal(err error) bool {
	return errors.Is(err, ErrContractViolation) || errors.Is(err, ErrTreeCorruption)
}
