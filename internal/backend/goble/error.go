package goble

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/nearbyhal/pkg/hal"
)

// NormalizeError maps go-ble errors to a Status. The library reports most
// failures as plain strings, so matching is by message.
func NormalizeError(err error) hal.Status {
	if err == nil {
		return hal.StatusOK
	}
	if errors.Is(err, context.Canceled) {
		return hal.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return hal.StatusHardwareNotReady
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "operation not permitted"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "can't init hci"):
		return hal.StatusHardwareNotReady
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return hal.StatusHardwareNotReady
	case strings.Contains(msg, "already connected"),
		strings.Contains(msg, "busy"):
		return hal.StatusError
	case strings.Contains(msg, "not supported"),
		strings.Contains(msg, "not implemented"):
		return hal.StatusUnsupported
	case strings.Contains(msg, "i/o"),
		strings.Contains(msg, "broken pipe"):
		return hal.StatusIOError
	default:
		return hal.StatusError
	}
}
