package compliance

import "errors"

var (
	// ErrUnauthorized: relay to an unbound module, a module refusing a
	// relayed call from a registry it is not bound to, or a caller whose
	// role does not permit the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConfiguration: a malformed or misdirected configuration call.
	// Always returned before any state is written.
	ErrConfiguration = errors.New("invalid configuration call")

	// ErrInvariantViolation should never surface; it marks a state the
	// engine treats as a defect (for example a negative remaining window).
	ErrInvariantViolation = errors.New("invariant violation")

	ErrUnknownModule = errors.New("unknown module")
)
