package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/nearbyhal/pkg/hal"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print local device information and data paths",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
}

var deviceTypeNames = map[hal.DeviceType]string{
	hal.DeviceUnknown: "unknown",
	hal.DevicePhone:   "phone",
	hal.DeviceTablet:  "tablet",
	hal.DeviceLaptop:  "laptop",
	hal.DeviceDesktop: "desktop",
}

func runInfo(cmd *cobra.Command, _ []string) error {
	p, _, err := loadPlatform(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	f := p.Factory()
	if f == nil {
		return fmt.Errorf("target %s has no platform factory: %w", p.Target(), hal.ErrUnsupported)
	}
	dev := f.CreateDeviceInfo()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", dev.DeviceName())
	fmt.Fprintf(w, "Full name:\t%s\n", dev.FullName())
	fmt.Fprintf(w, "Type:\t%s\n", deviceTypeNames[dev.DeviceType()])
	fmt.Fprintf(w, "OS:\t%s\n", f.GetCurrentOS())
	fmt.Fprintf(w, "App data:\t%s\n", dev.AppDataPath())
	fmt.Fprintf(w, "Downloads:\t%s\n", dev.DownloadPath())
	fmt.Fprintf(w, "Temporary:\t%s\n", dev.TemporaryPath())
	fmt.Fprintf(w, "Logs:\t%s\n", dev.LogPath())
	return w.Flush()
}
