package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/srg/nearbyhal/pkg/hal"
)

func newBatteryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battery",
		Short: "Print the battery state",
		Args:  cobra.NoArgs,
		RunE:  runBattery,
	}
	cmd.Flags().BoolP("watch", "w", false, "Keep printing battery changes until interrupted")
	return cmd
}

type batteryPrinter struct {
	out io.Writer
}

func (b batteryPrinter) OnBatteryChanged(info hal.BatteryInfo) {
	printBattery(b.out, info)
}

func printBattery(out io.Writer, info hal.BatteryInfo) {
	if !info.Present {
		fmt.Fprintln(out, "No battery (mains powered)")
		return
	}
	state := "discharging"
	if info.Charging {
		state = "charging"
	}
	line := fmt.Sprintf("Battery: %d%% %s", info.Level, state)
	if info.RemainingTime > 0 {
		line += fmt.Sprintf(", %s remaining", info.RemainingTime)
	}
	fmt.Fprintln(out, line)
}

func runBattery(cmd *cobra.Command, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	p, _, err := loadPlatform(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	battery := p.Battery()
	var info hal.BatteryInfo
	if err := hal.OpError("read battery", battery.GetBatteryInfo(&info)); err != nil {
		return err
	}
	printBattery(cmd.OutOrStdout(), info)
	if !watch {
		return nil
	}

	battery.Init(batteryPrinter{out: cmd.OutOrStdout()})
	defer battery.Init(nil)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := interruptible(ctx, cmd.ErrOrStderr(), "watching")
	defer stop()
	<-ctx.Done()
	return nil
}
