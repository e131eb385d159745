package credits

import (
	"errors"
	"fmt"
)

// Store-level errors. The marketplace orchestrator branches on these
// variants rather than parsing error messages.
var (
	// ErrCreditNotFound means the referenced credit does not exist.
	ErrCreditNotFound = errors.New("credit not found")

	// ErrPermissionDenied means the row-level access-control layer
	// rejected the mutation. Distinct from ErrNoRowsMatched.
	ErrPermissionDenied = errors.New("permission denied by access control")

	// ErrNoRowsMatched means a conditional update matched zero rows:
	// another operation changed the row first (lost race).
	ErrNoRowsMatched = errors.New("no rows matched conditional update")
)

// Domain-level errors surfaced to callers.
var (
	// ErrSelfPurchase means the buyer already owns the credit.
	ErrSelfPurchase = errors.New("cannot purchase own credit")

	// ErrAlreadyRetired means the credit was retired before this call.
	ErrAlreadyRetired = errors.New("credit already retired")

	// ErrNotOwner means the caller does not hold the credit.
	ErrNotOwner = errors.New("caller is not the current owner")
)

// InvalidStateError reports that a credit is not in the status an
// operation requires. It always names the actual status.
type InvalidStateError struct {
	Operation string
	Status    CreditStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("credit not available for %s: status is %q", e.Operation, e.Status)
}

// NewInvalidStateError builds an InvalidStateError for an operation
func NewInvalidStateError(operation string, status CreditStatus) error {
	return &InvalidStateError{Operation: operation, Status: status}
}

// IsInvalidState reports whether err is an InvalidStateError
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
