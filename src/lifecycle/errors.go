package lifecycle

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected transition. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	OrderID string
	From    string
	To      string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: %s -> %s: %s", e.OrderID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
