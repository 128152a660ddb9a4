package common

import (
	"errors"
	"fmt"
)

// InvariantViolation reports a broken structural guarantee of the catalog:
// a duplicate chunk id, an embedding with the wrong dimension, evidence out
// of order, a graph edge pointing at a missing module. These are programming
// or data-corruption errors, never recoverable conditions, so a run that
// hits one aborts instead of publishing a partial index.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// Violated builds an InvariantViolation for the named guarantee.
func Violated(invariant string, detail string) error {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}

// IsInvariantViolation reports whether err is an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
