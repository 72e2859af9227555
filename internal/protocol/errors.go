package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned when a wire name is not in the command set.
var ErrUnknownCommand = errors.New("unknown command")

// ValidationError reports a parameter that failed local validation.
// It is always produced before anything is written to the wire.
type ValidationError struct {
	Command Command
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s parameters: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("invalid %s parameter %q: %s", e.Command, e.Field, e.Reason)
}

func invalid(cmd Command, field, format string, args ...any) error {
	return &ValidationError{Command: cmd, Field: field, Reason: fmt.Sprintf(format, args...)}
}
