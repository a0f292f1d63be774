// Package report renders the harness summary table.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/hbsc/heartbeat"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Result is the outcome of running one variant.
type Result struct {
	Variant heartbeat.Kind
	Meter   string
	LogPath string
	Stats   heartbeat.Stats
	Elapsed time.Duration
	Err     error
}

// ColorScheme defines the colors used for the summary
type ColorScheme struct {
	Header  *color.Color
	Variant *color.Color
	Success *color.Color
	Error   *color.Color
	Value   *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:  color.New(color.FgYellow, color.Bold),
		Variant: color.New(color.FgCyan, color.Bold),
		Success: color.New(color.FgGreen),
		Error:   color.New(color.FgRed, color.Bold),
		Value:   color.New(color.FgWhite),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{scheme.Header, scheme.Variant, scheme.Success, scheme.Error, scheme.Value} {
		c.DisableColor()
	}
	return scheme
}

// Formatter writes results as an aligned, optionally colored table.
type Formatter struct {
	NoColor bool
	colors  *ColorScheme
}

func NewFormatter(noColor bool) *Formatter {
	colors := DefaultColorScheme()
	if noColor {
		colors = NoColorScheme()
	}
	return &Formatter{NoColor: noColor, colors: colors}
}

// NewFormatterFor disables colors unless out is a terminal.
func NewFormatterFor(out io.Writer) *Formatter {
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return NewFormatter(noColor || color.NoColor)
}

// Format renders results, one row per variant, followed by a status line.
func (f *Formatter) Format(results []Result) string {
	var buf strings.Builder

	header := fmt.Sprintf("%-15s %8s %14s %14s %12s %12s %10s  %s",
		"VARIANT", "BEATS", "PERF (hb/s)", "WINDOW (hb/s)", "ACC (/s)", "POWER (W)", "P99", "STATUS")
	buf.WriteString(f.colors.Header.Sprint(header))
	buf.WriteByte('\n')

	failed := 0
	for _, r := range results {
		name := f.colors.Variant.Sprintf("%-15s", r.Variant.String())
		if r.Err != nil {
			failed++
			buf.WriteString(fmt.Sprintf("%s %s\n", name, f.colors.Error.Sprint(f.icon(false)+" "+r.Err.Error())))
			continue
		}

		s := r.Stats
		row := fmt.Sprintf("%8d %14.2f %14.2f %12s %12s %10s",
			s.Heartbeats, s.Perf.Global, s.Perf.Window,
			optional(r.Variant.TracksAccuracy(), s.AccuracyRate.Global),
			optional(r.Variant.TracksEnergy(), s.Power.Global),
			s.Latency.P99)
		buf.WriteString(fmt.Sprintf("%s %s  %s\n", name, f.colors.Value.Sprint(row), f.colors.Success.Sprint(f.icon(true))))
	}

	summary := fmt.Sprintf("%d of %d variants passed", len(results)-failed, len(results))
	if failed > 0 {
		buf.WriteString(f.colors.Error.Sprint(summary))
	} else {
		buf.WriteString(f.colors.Success.Sprint(summary))
	}
	buf.WriteByte('\n')

	return buf.String()
}

// Write formats results to w.
func (f *Formatter) Write(w io.Writer, results []Result) error {
	_, err := io.WriteString(w, f.Format(results))
	return err
}

func (f *Formatter) icon(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func optional(tracked bool, v float64) string {
	if !tracked {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
