package core

import (
	"errors"
	"fmt"
	"log/slog"
)

// Common errors.
var (
	ErrNotSignedIn    = errors.New("please sign in")
	ErrWrongKey       = errors.New("wrong encryption key")
	ErrMissingKey     = errors.New("encryption key is required to decrypt notes")
	ErrNotFound       = errors.New("note not found")
	ErrRemote         = errors.New("remote store error")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// UserError carries a message that can be shown to the user as is.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error { return e.Err }

// Userf builds a UserError with a formatted message.
func Userf(format string, args ...any) *UserError {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// AsUserMessage returns the text to show for err. A UserError and the
// well-known sentinels keep their own text, anything else is logged in full
// and replaced by fallback.
func AsUserMessage(logger *slog.Logger, err error, fallback string) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}
	for _, known := range []error{ErrNotSignedIn, ErrWrongKey, ErrMissingKey, ErrSyncInProgress} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(fallback, "error", err)
	return fallback
}
