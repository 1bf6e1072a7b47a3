package exception

import (
	"errors"
	"fmt"
)

// Upstream fetch errors
var (
	ErrTimeout    = errors.New("upstream request timed out")
	ErrConnection = errors.New("upstream connection failed")
	ErrNotFound   = errors.New("resource not found")
	ErrMalformed  = errors.New("malformed upstream payload")
	ErrExhausted  = errors.New("all credentials exhausted")

	ErrNoCredentials = errors.New("no credentials configured")
)

// HTTPError reports a non-2xx upstream status that is not a 404.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// NewHTTPError builds an HTTPError for the given status code.
func NewHTTPError(status int) error {
	return &HTTPError{Status: status}
}

// IsHTTPStatus reports whether err carries the given upstream status.
func IsHTTPStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
