package draft

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPath           = errors.New("draft: invalid path")
	ErrIndexOutOfRange       = errors.New("draft: index out of range")
	ErrTypeMismatch          = errors.New("draft: path crosses a non-container value")
	ErrArrayLength           = errors.New("draft: array length is owned by the reconciler")
	ErrGovernedGroup         = errors.New("draft: repeating group is governed by its count field")
	ErrUnknownSection        = errors.New("draft: unknown section")
	ErrUnknownGroup          = errors.New("draft: unknown repeating group")
	ErrInvalidCount          = errors.New("draft: invalid count")
	ErrPendingConfirmation   = errors.New("draft: truncation awaiting confirmation")
	ErrNoPendingConfirmation = errors.New("draft: no truncation awaiting confirmation")
	ErrSubmitting            = errors.New("draft: submit in progress")
	ErrClosed                = errors.New("draft: editor is closed")
)

// ValidationError reports a record-level field that blocks a final submit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}
