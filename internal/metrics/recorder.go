// Package metrics records the outcome of draft store calls.
package metrics

import "time"

// Store operations reported by the autosave controller.
const (
	OpGet    = "get"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder receives one call per store operation.
type Recorder interface {
	Record(op string, err error, latency time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(string, error, time.Duration) {}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
