// Package confirm waits for on-chain confirmation before durable writes.
package confirm

import "fmt"

// State is the chain status of a submitted transaction.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFinalized State = "finalized"
	StateFailed    State = "failed"
)

// Status of a signature. Reason is set for StateFailed.
type Status struct {
	State  State
	Reason string
	Slot   int64
}

// Landed reports whether the transaction reached confirmed or finalized.
func (s Status) Landed() bool {
	return s.State == StateConfirmed || s.State == StateFinalized
}

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s.Landed() || s.State == StateFailed
}

func failureReason(err interface{}) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}
