// Package audit ships failure records to write-only sinks off the request
// path.
package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Record describes one failed request.
type Record struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	CallerID   *int64    `json:"callerId,omitempty"`
	ClientAddr string    `json:"clientAddr,omitempty"`
	Status     int       `json:"status"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	Payload    any       `json:"payload,omitempty"`
	TraceID    string    `json:"traceId"`
}

// NewRecordID returns a time-ordered id.
func NewRecordID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
