package ordering

import (
	"fmt"
	"strings"

	"github.com/starford/linkorder/internal/apperr"
)

// OutOfRangeError reports an index outside [Min, Max].
type OutOfRangeError struct {
	Index int
	Min   int
	Max   int
}

func (e *OutOfRangeError) Error() string {
	if e.Max < e.Min {
		return fmt.Sprintf("ordering: index %d out of range: group is empty", e.Index)
	}
	return fmt.Sprintf("ordering: index %d out of range [%d, %d]", e.Index, e.Min, e.Max)
}

func (e *OutOfRangeError) Unwrap() error { return apperr.ErrOutOfRange }

// InvariantViolationError reports siblings that ended up on the same index,
// or a group whose indexes are not exactly 0..n-1.
type InvariantViolationError struct {
	Index   int
	LinkIDs []string
	Reason  string
}

func (e *InvariantViolationError) Error() string {
	if len(e.LinkIDs) > 0 {
		return fmt.Sprintf("ordering: %s at index %d (links %s)", e.Reason, e.Index, strings.Join(e.LinkIDs, ", "))
	}
	return fmt.Sprintf("ordering: %s at index %d", e.Reason, e.Index)
}

func (e *InvariantViolationError) Unwrap() error { return apperr.ErrInvariantViolation }
