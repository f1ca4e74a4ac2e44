package security

import (
	"errors"
	"fmt"
	"net/http"
)

// Store-level failures.
var (
	// ErrStoreUnavailable indicates the backing store could not be reached;
	// the in-memory document is unchanged.
	ErrStoreUnavailable = errors.New("security config store unavailable")
	// ErrVersionConflict indicates a persist lost the race against a
	// concurrent edit. The command may be retried against the new version.
	ErrVersionConflict = errors.New("security config version conflict")
)

// CommandError is a command-processing failure with an HTTP status mapping.
// All validation failures surface as 400 before any mutation is persisted.
type CommandError struct {
	Status  int
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

// BadRequest builds a 400 CommandError.
func BadRequest(format string, args ...any) *CommandError {
	return &CommandError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// StatusOf maps an error from the command-routing core to an HTTP status.
func StatusOf(err error) int {
	var cmdErr *CommandError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cmdErr):
		return cmdErr.Status
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
