package normalize

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedLocation = errors.New("malformed location")
	ErrInvalidEnvelope   = errors.New("invalid news envelope")
	ErrMalformedRow      = errors.New("malformed news row")
	ErrReportNotFound    = errors.New("report not found")
)

// MalformedLocationError means column 6 of a row was not a JSON object
// carrying numeric latitude and longitude.
type MalformedLocationError struct {
	Row      int // index in the upstream news array
	ReportID string
	Raw      string
	Err      error
}

func (e *MalformedLocationError) Error() string {
	return fmt.Sprintf("row %d (report %q): malformed location %q: %v", e.Row, e.ReportID, e.Raw, e.Err)
}

func (e *MalformedLocationError) Unwrap() error {
	return e.Err
}

func (e *MalformedLocationError) Is(target error) bool {
	return target == ErrMalformedLocation
}
