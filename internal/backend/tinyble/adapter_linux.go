//go:build linux

package tinyble

import (
	"strings"

	"tinygo.org/x/bluetooth"
)

// hostAdapterFor resolves a BlueZ adapter such as "hci1"; "" is the default one.
func hostAdapterFor(id string) Adapter {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return hostAdapter{a: bluetooth.DefaultAdapter}
	}
	return hostAdapter{a: bluetooth.NewAdapter(trimmed)}
}
