package circuit

import "errors"

// Sentinel errors for circuit-breaker admission and accounting.
var (
	// ErrOpen is returned when admission is denied because the
	// circuit for a request type is Open, or Half-Open with no trial
	// slots available.
	ErrOpen = errors.New("circuit: breaker is open")
)
