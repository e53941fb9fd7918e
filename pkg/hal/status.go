package hal

import (
	"context"
	"errors"
	"fmt"
)

// Status is the outcome of every fallible HAL operation.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusUnsupported
	StatusInvalidArgument
	StatusHardwareNotReady
	StatusIOError
	StatusNotFound
)

var statusNames = [...]string{
	StatusOK:               "OK",
	StatusError:            "ERROR",
	StatusUnsupported:      "UNSUPPORTED",
	StatusInvalidArgument:  "INVALID_ARGUMENT",
	StatusHardwareNotReady: "HARDWARE_NOT_READY",
	StatusIOError:          "IO_ERROR",
	StatusNotFound:         "NOT_FOUND",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// OK reports whether s is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

// Err converts s into an error, nil for StatusOK.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusErr{Status: s}
}

// StatusErr carries a non-OK Status through error-returning code paths.
type StatusErr struct {
	Status Status
	Op     string
}

func (e *StatusErr) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Is allows errors.Is to compare StatusErr values by Status.
func (e *StatusErr) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StatusErr)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// Sentinel errors for errors.Is checks.
var (
	ErrUnsupported      = &StatusErr{Status: StatusUnsupported}
	ErrInvalidArgument  = &StatusErr{Status: StatusInvalidArgument}
	ErrHardwareNotReady = &StatusErr{Status: StatusHardwareNotReady}
	ErrIO               = &StatusErr{Status: StatusIOError}
	ErrNotFound         = &StatusErr{Status: StatusNotFound}
)

// OpError wraps s with the name of the failing operation.
func OpError(op string, s Status) error {
	if s == StatusOK {
		return nil
	}
	return &StatusErr{Status: s, Op: op}
}

// StatusOf maps an error back to a Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *StatusErr
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusHardwareNotReady
	}
	return StatusError
}
