package errs

import (
	"errors"
	"fmt"
)

// UserFacing marks an error caused by the user's configuration or input
// (unknown environment, unsupported model, no prompts to run). These are
// reported without a stack and abort a run before any scheduling happens.
type UserFacing struct {
	Message string
	Err     error
}

func NewUserFacing(format string, args ...any) error {
	return &UserFacing{Message: fmt.Sprintf(format, args...)}
}

// WrapUserFacing attaches a user-facing message to an underlying cause.
func WrapUserFacing(err error, format string, args ...any) error {
	return &UserFacing{Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *UserFacing) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserFacing) Unwrap() error {
	return e.Err
}

// IsUserFacing reports whether err or anything it wraps is a UserFacing error.
func IsUserFacing(err error) bool {
	var uf *UserFacing
	return errors.As(err, &uf)
}
