// Package report renders suite results for people: a console summary and a
// static HTML page next to report.json.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/acwooding/dmp-test-ci/internal/scenario"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type palette struct {
	pass, fail, dim, bold *color.Color
}

func newPalette(colorize bool) palette {
	p := palette{
		pass: color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		dim:  color.New(color.FgHiBlack),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.pass, p.fail, p.dim, p.bold} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// PrintSummary writes a per-scenario summary of r to w
func PrintSummary(w io.Writer, r *scenario.Report, colorize bool) error {
	p := newPalette(colorize)
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s  %s\n\n", p.bold.Sprint(r.Suite), p.dim.Sprint(r.URL))
	for _, res := range r.Results {
		d := res.Duration.Round(time.Millisecond)
		if res.Status == scenario.StatusPassed {
			fmt.Fprintf(&b, "  %s %s %s\n", p.pass.Sprint("✓"), res.Scenario, p.dim.Sprintf("(%s)", d))
			continue
		}
		fmt.Fprintf(&b, "  %s %s %s\n", p.fail.Sprint("✘"), res.Scenario, p.dim.Sprintf("(%s)", d))
		fmt.Fprintf(&b, "      %s\n", res.Error)
		for _, a := range res.Artifacts {
			fmt.Fprintf(&b, "      %s %s\n", p.dim.Sprint("artifact:"), a)
		}
	}

	b.WriteString("\n  ")
	b.WriteString(p.pass.Sprintf("%d passed", r.Passed))
	if r.Failed > 0 {
		b.WriteString(", ")
		b.WriteString(p.fail.Sprintf("%d failed", r.Failed))
	}
	fmt.Fprintf(&b, " %s\n", p.dim.Sprintf("(%s)", r.Duration().Round(time.Millisecond)))

	var updated []string
	for _, res := range r.Results {
		updated = append(updated, res.UpdatedBaselines...)
	}
	if len(updated) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", p.bold.Sprint("baselines written:"), strings.Join(updated, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
