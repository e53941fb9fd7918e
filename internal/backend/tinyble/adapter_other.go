//go:build !linux

package tinyble

import "tinygo.org/x/bluetooth"

// hostAdapterFor ignores id; only Linux exposes more than one adapter.
func hostAdapterFor(string) Adapter {
	return hostAdapter{a: bluetooth.DefaultAdapter}
}
