package newsapi

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrEmptyID = errors.New("news id is required")

// TransportError is returned for a non-2xx response or when the request
// could not complete. Err holds the underlying failure, if any.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int // zero when no response was received
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status code: %d - status: %s", e.Method, e.Path, e.StatusCode, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsTransportError reports whether err carries a *TransportError.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
