package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/nearbyhal/pkg/hal"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE advertisements",
		Long: `Scan for BLE advertisements through the bound BLE backend and print one
row per advertiser, strongest signal first.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	cmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration, 0 scans until interrupted (defaults to ble.scan_timeout)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceP("services", "s", nil, "Only report advertisers carrying these service UUIDs")
	cmd.Flags().Bool("active", false, "Request scan responses")
	return cmd
}

// scanCollector keeps the latest advertisement of every peer.
type scanCollector struct {
	hal.NopBLEHandler
	mu      sync.Mutex
	results map[hal.Address]hal.ScanResult
}

func (c *scanCollector) OnScanResult(r hal.ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.Peer] = r
}

func (c *scanCollector) sorted() []hal.ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]hal.ScanResult, 0, len(c.results))
	for _, r := range c.results {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].Peer < list[j].Peer
	})
	return list
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	services, _ := cmd.Flags().GetStringSlice("services")
	active, _ := cmd.Flags().GetBool("active")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	duration := cfg.BLE.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration, _ = cmd.Flags().GetDuration("duration")
	}

	p, logger, err := bindPlatform(cmd, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ble := p.BLE()
	collector := &scanCollector{results: map[hal.Address]hal.ScanResult{}}
	ble.Init(collector)
	defer ble.Init(nil)

	params := &hal.ScanParameters{Active: active, ServiceUUIDs: services}
	if err := hal.OpError("start scanning", ble.StartScanning(params)); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	ctx, stop := interruptible(ctx, cmd.ErrOrStderr(), "scan")
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Scanning for BLE devices...\n")
	<-ctx.Done()
	if st := ble.StopScanning(); !st.OK() {
		logger.WithField("status", st).Warn("Failed to stop scanning")
	}

	results := collector.sorted()
	if format == "json" {
		return displayScanJSON(cmd.OutOrStdout(), results)
	}
	return displayScanTable(cmd.OutOrStdout(), results)
}

func displayScanTable(out io.Writer, results []hal.ScanResult) error {
	if len(results) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, r := range results {
		name := r.LocalName
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(r.ServiceUUIDs, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, r.Peer, r.RSSI, services)
	}
	return w.Flush()
}

type scanEntry struct {
	Address     string   `json:"address"`
	Name        string   `json:"name,omitempty"`
	RSSI        int8     `json:"rssi"`
	Connectable bool     `json:"connectable"`
	Services    []string `json:"services,omitempty"`
}

func displayScanJSON(out io.Writer, results []hal.ScanResult) error {
	entries := make([]scanEntry, len(results))
	for i, r := range results {
		entries[i] = scanEntry{
			Address:     r.Peer.String(),
			Name:        r.LocalName,
			RSSI:        r.RSSI,
			Connectable: r.Connectable,
			Services:    r.ServiceUUIDs,
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
