//go:build linux

package osprim

import (
	"golang.org/x/sys/unix"
)

func monotonicMs() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackMs()
	}
	return uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1_000_000
}
