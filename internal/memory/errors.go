package memory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned for any status change outside the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentModification is returned by a compare-and-set status update
	// whose expected prior status no longer matches.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrCollaboratorUnavailable wraps failures of the store or the search backend.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrNotFound is returned when a fact or entity does not exist.
	ErrNotFound = errors.New("not found")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	FactID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("fact %s: cannot transition %s -> %s", e.FactID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError lists every problem found with a record at the ingestion boundary.
type ValidationError struct {
	Kind     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
