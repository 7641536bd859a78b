package proximity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harborview-capital/regionscan/internal/model"
)

// AttemptFailure records one failed step of the schedule. Network errors,
// timeouts, and malformed payloads all land here undistinguished; the only
// thing the schedule cares about is that the attempt did not produce a count.
type AttemptFailure struct {
	Attempt  int
	Endpoint string
	Err      error
}

func (f *AttemptFailure) Error() string {
	return fmt.Sprintf("attempt %d (%s): %v", f.Attempt, f.Endpoint, f.Err)
}

func (f *AttemptFailure) Unwrap() error {
	return f.Err
}

// UnavailableError means every attempt in the schedule was exhausted for one
// query. It carries the per-attempt failures for diagnosis.
type UnavailableError struct {
	Query    model.ProximityQuery
	Failures []*AttemptFailure
}

func (e *UnavailableError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("proximity unavailable for %s after %d attempts: %s",
		e.Query, len(e.Failures), strings.Join(parts, "; "))
}

// IsUnavailable reports whether err is (or wraps) an exhausted-schedule
// failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
