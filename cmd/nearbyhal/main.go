package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/srg/nearbyhal/pkg/config"
	"github.com/srg/nearbyhal/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// openPlatform binds the platform for a command. Tests replace it to inject
// backends.
var openPlatform = func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*platform.Platform, error) {
	return platform.New(ctx, cfg, platform.WithLogger(logger))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nearbyhal",
		Short: "Inspect and exercise the Nearby platform layer",
		Long: `Command-line front end for the Nearby platform abstraction layer:

- Show which backend is bound to every capability on this host
- Read and write the persistence store
- Scan for BLE advertisements through the bound radio
- Report battery state and local device information`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("target", "", "Override the target (auto, embedded, desktop)")
	root.PersistentFlags().Bool("trace", false, "Trace every capability call to the log")

	root.AddCommand(newProbeCmd())
	root.AddCommand(newStoreCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newBatteryCmd())
	root.AddCommand(newInfoCmd())
	return root
}

// loadPlatform resolves configuration from flags and binds the platform.
func loadPlatform(cmd *cobra.Command) (*platform.Platform, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return bindPlatform(cmd, cfg)
}

// loadConfig reads --config and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if target, _ := cmd.Flags().GetString("target"); target != "" {
		cfg.Target = target
	}
	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		cfg.Trace.Enabled = true
		cfg.Trace.Sink = "log"
	}
	return cfg, nil
}

func bindPlatform(cmd *cobra.Command, cfg *config.Config) (*platform.Platform, *logrus.Logger, error) {
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	p, err := openPlatform(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind platform: %w", err)
	}
	return p, logger, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
