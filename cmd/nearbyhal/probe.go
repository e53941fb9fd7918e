package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/nearbyhal/pkg/platform"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show the backend bound to each capability",
		Long: `Bind the platform for this host and print which backend serves every
capability. Capabilities without a backend are reported as absent; stand-in
backends that refuse commands are marked unsupported.`,
		Args: cobra.NoArgs,
		RunE: runProbe,
	}
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	p, _, err := loadPlatform(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Target   string `json:"target"`
			Bindings any    `json:"bindings"`
		}{p.Target(), p.Bindings()})
	}
	return displayBindings(out, p)
}

func displayBindings(out io.Writer, p *platform.Platform) error {
	colorize := isTerminal(out)
	paint := func(c *color.Color, s string) string {
		if !colorize {
			return s
		}
		return c.Sprint(s)
	}
	bound := color.New(color.FgGreen)
	standIn := color.New(color.FgYellow)
	absent := color.New(color.FgRed)

	fmt.Fprintf(out, "Target: %s\n\n", p.Target())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPABILITY\tBACKEND")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for pair := p.Bindings().Oldest(); pair != nil; pair = pair.Next() {
		backend := pair.Value
		switch {
		case backend == platform.Absent:
			backend = paint(absent, backend)
		case strings.HasPrefix(backend, "stub"), backend == "memory":
			backend = paint(standIn, backend)
		default:
			backend = paint(bound, backend)
		}
		fmt.Fprintf(w, "%s\t%s\n", pair.Key, backend)
	}
	return w.Flush()
}

// isTerminal reports whether w is an interactive terminal that accepts color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
