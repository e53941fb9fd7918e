package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Command-level errors
var (
	// ErrKeyNotFound is returned by "store get" for a key that was never written.
	ErrKeyNotFound = errors.New("key not found")
)

// FormatUserError turns capability statuses and timeouts into messages that
// point at the likely cause.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s (operation timed out)", err)
	}
	switch hal.StatusOf(err) {
	case hal.StatusUnsupported:
		return fmt.Sprintf("%s (not available on this host; run 'nearbyhal probe' to see bound backends)", err)
	case hal.StatusHardwareNotReady:
		return fmt.Sprintf("%s (radio is off or not present)", err)
	case hal.StatusIOError:
		return fmt.Sprintf("%s (check permissions on the data directory)", err)
	}
	return err.Error()
}
