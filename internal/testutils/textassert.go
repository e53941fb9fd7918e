package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of *testing.T an asserter reports to.
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
}

// TextAssertOptions controls how command output is normalized before it is
// compared.
type TextAssertOptions struct {
	TrimSpace bool `default:"true"`
	// CollapseSpaces folds runs of spaces, so tabwriter column widths do not
	// matter.
	CollapseSpaces   bool `default:"false"`
	IgnoreEmptyLines bool `default:"false"`
	EnableColors     bool `default:"false"`
}

type TextOption func(*TextAssertOptions)

func WithCollapsedSpaces() TextOption {
	return func(o *TextAssertOptions) { o.CollapseSpaces = true }
}

func WithIgnoredEmptyLines() TextOption {
	return func(o *TextAssertOptions) { o.IgnoreEmptyLines = true }
}

func WithColoredDiff() TextOption {
	return func(o *TextAssertOptions) { o.EnableColors = true }
}

// AssertText fails t with a unified diff when actual differs from expected.
func AssertText(t TestingT, actual, expected string, opts ...TextOption) bool {
	t.Helper()
	o := TextAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	if diff := TextDiff(actual, expected, o); diff != "" {
		t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// TextDiff returns the unified diff of the normalized texts, empty when equal.
func TextDiff(actual, expected string, o TextAssertOptions) string {
	a, e := normalizeText(actual, o), normalizeText(expected, o)
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e, a)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits))
	if !o.EnableColors {
		return unified
	}
	return colorizeDiff(unified)
}

var spaceRun = regexp.MustCompile(` {2,}`)

func normalizeText(text string, o TextAssertOptions) string {
	if o.TrimSpace {
		text = strings.TrimSpace(text)
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if o.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if o.CollapseSpaces {
			line = strings.TrimRight(spaceRun.ReplaceAllString(line, " "), " ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func colorizeDiff(diff string) string {
	red, green, cyan := color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgCyan)
	for _, c := range []*color.Color{red, green, cyan} {
		c.EnableColor()
	}
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visibleSpaces(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visibleSpaces(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleSpaces shows spaces as · and tabs as →.
func visibleSpaces(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}
