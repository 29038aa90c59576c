package trader

import (
	"errors"
	"fmt"
	"strings"
)

// CollaboratorError wraps a failed call to the market client. The cycle that
// produced it was aborted without touching the cooldown.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a forced action other than buy or sell.
type ValidationError struct {
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("action must be buy or sell, got %q", e.Value)
}

// ErrorKind classifies err for callers that report failures to users.
func ErrorKind(err error) string {
	var collabErr *CollaboratorError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &collabErr):
		return "collaborator"
	case errors.As(err, &validationErr):
		return "validation"
	default:
		return "internal"
	}
}

// ParseAction accepts only the two executable actions.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	default:
		return "", &ValidationError{Value: raw}
	}
}
