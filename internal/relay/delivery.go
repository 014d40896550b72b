package relay

import (
	"errors"
	"time"
)

type Notification struct {
	EventID       string    `json:"event_id"`
	ThreadID      string    `json:"thread_id"`
	UserID        string    `json:"user_id"`
	MessageID     string    `json:"message_id"`
	BackupAllowed bool      `json:"backup_allowed"`
	LicenseName   string    `json:"license_name"`
	ThreadTitle   string    `json:"thread_title"`
	OccurredAt    time.Time `json:"timestamp"`
}

type State string

const (
	StatePending   State = "pending"
	StateAttempted State = "attempted"
	StateSucceeded State = "succeeded"
	StateExhausted State = "exhausted"
	StateRejected  State = "rejected"
	StateDropped   State = "dropped"
	StateAbandoned State = "abandoned"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StateRejected, StateDropped, StateAbandoned:
		return true
	}
	return false
}

// Delivery tracks one notification through its attempts.
type Delivery struct {
	Notification Notification
	State        State
	Attempts     int
	LastError    string
	EnqueuedAt   time.Time
	SettledAt    time.Time
}

func (d *Delivery) begin() {
	d.State = StateAttempted
	d.Attempts++
}

// settle moves an attempted delivery to its next state. Pending means another
// attempt is due.
func (d *Delivery) settle(err error, maxAttempts int) {
	if d.State != StateAttempted {
		return
	}
	switch {
	case err == nil:
		d.State = StateSucceeded
		d.LastError = ""
		return
	case IsPermanent(err):
		d.State = StateRejected
	case d.Attempts >= maxAttempts:
		d.State = StateExhausted
	default:
		d.State = StatePending
	}
	d.LastError = err.Error()
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func exponentialBackoff(base, maxWait time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= maxWait {
			return maxWait
		}
	}
	if wait > maxWait {
		return maxWait
	}
	return wait
}
