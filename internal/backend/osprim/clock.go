package osprim

import "time"

var processStart = time.Now()

// fallbackMs reads the runtime's monotonic clock relative to process start.
func fallbackMs() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}
