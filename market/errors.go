package market

import "errors"

// Symbol-level failures. Each one degrades the affected sub-score of a single
// symbol; none of them aborts the weekly run.
var (
	// ErrInsufficientData is returned when the history is too short for a computation.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrComputationTimeout is returned when a symbol exceeds its time budget.
	ErrComputationTimeout = errors.New("computation timeout")

	// ErrExternalScoreUnavailable is returned when the fundamental feed has no score.
	ErrExternalScoreUnavailable = errors.New("external score unavailable")
)

// ErrPersistenceConflict is returned when a write loses a concurrent update
// race. Unlike the symbol-level errors it fails the whole pool write.
var ErrPersistenceConflict = errors.New("persistence conflict")
