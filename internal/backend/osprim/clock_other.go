//go:build !linux

package osprim

func monotonicMs() uint64 {
	return fallbackMs()
}
