// Package progress prints the operator-facing status lines of a bootstrap run.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"plexident/launchpad/internal/sequencer"
)

// Printer writes one human-readable line before each phase and on failure.
// Probe failures are reported only every reportEvery attempts to keep a long
// wait readable.
type Printer struct {
	out         io.Writer
	reportEvery int

	success *color.Color
	info    *color.Color
	warn    *color.Color
	error   *color.Color
}

// NewPrinter writes to out, with colour when out is a terminal and NO_COLOR
// is unset.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{
		out:         out,
		reportEvery: 20,
		success:     color.New(color.FgGreen, color.Bold),
		info:        color.New(color.FgBlue, color.Bold),
		warn:        color.New(color.FgYellow, color.Bold),
		error:       color.New(color.FgRed, color.Bold),
	}

	if !supportsColor(out) || os.Getenv("NO_COLOR") != "" {
		p.success.DisableColor()
		p.info.DisableColor()
		p.warn.DisableColor()
		p.error.DisableColor()
	} else {
		p.success.EnableColor()
		p.info.EnableColor()
		p.warn.EnableColor()
		p.error.EnableColor()
	}
	return p
}

func (p *Printer) Observe(_ context.Context, ev sequencer.Event) {
	switch ev.Kind {
	case sequencer.EventTransition:
		p.transition(ev)
	case sequencer.EventProbeFailed:
		if ev.Attempt == 1 || (p.reportEvery > 0 && ev.Attempt%p.reportEvery == 0) {
			p.line(p.warn, "…", "%s not reachable yet (attempt %d): %v", ev.Endpoint, ev.Attempt, ev.Err)
		}
	case sequencer.EventProbeSucceeded:
		p.line(p.success, "✔", "%s is up", ev.Endpoint)
	case sequencer.EventStepFinished:
		if ev.Result.Status == sequencer.StatusOK {
			p.line(p.success, "✔", "%s done in %.1fs", ev.Result.Name, float64(ev.Result.DurationMs)/1000)
		} else {
			p.line(p.error, "✘", "%s failed with exit code %d", ev.Result.Name, ev.Result.ExitCode)
		}
	}
}

func (p *Printer) transition(ev sequencer.Event) {
	switch ev.To {
	case sequencer.StateWaiting:
		p.line(p.info, "→", "Waiting for %s...", ev.Endpoint)
	case sequencer.StateMigrating:
		p.line(p.info, "→", "Applying database migrations: %s", strings.Join(ev.Command.Argv, " "))
	case sequencer.StateCollectingAssets:
		p.line(p.info, "→", "Collecting static files: %s", strings.Join(ev.Command.Argv, " "))
	case sequencer.StateRunningHooks:
		p.line(p.info, "→", "Running %s: %s", ev.Command.Name, strings.Join(ev.Command.Argv, " "))
	case sequencer.StateServing:
		p.line(p.success, "→", "Starting server: %s", strings.Join(ev.Command.Argv, " "))
	case sequencer.StateFailed:
		p.line(p.error, "✘", "Start-up aborted")
	}
}

func (p *Printer) line(c *color.Color, mark, format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", c.Sprint(mark), fmt.Sprintf(format, args...))
}

func supportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
