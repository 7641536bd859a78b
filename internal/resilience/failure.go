package resilience

import (
	"fmt"
	"time"
)

// FailureRecord captures why one region's signal could not be obtained, for
// the unscored section of a scan report.
type FailureRecord struct {
	Region    string    `json:"region"`
	Signal    string    `json:"signal"` // "infrastructure" or "market"
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	Attempts  int       `json:"attempts,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewFailureRecord classifies err and stamps the record.
func NewFailureRecord(region, signal string, err error, attempts int) FailureRecord {
	return FailureRecord{
		Region:    region,
		Signal:    signal,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
}

// Reason renders the record as the one-line reason reported next to the
// region name.
func (r FailureRecord) Reason() string {
	if r.Attempts > 0 {
		return fmt.Sprintf("%s signal unavailable after %d attempts (%s): %s", r.Signal, r.Attempts, r.ErrorType, r.Error)
	}
	return fmt.Sprintf("%s signal unavailable (%s): %s", r.Signal, r.ErrorType, r.Error)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
