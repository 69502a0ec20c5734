package scenario

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"filebuttons/pkg/buttons"
	"filebuttons/pkg/config"
	"filebuttons/pkg/files"
	"filebuttons/pkg/gpio"
	"filebuttons/pkg/log"
	"filebuttons/pkg/metrics"
	"filebuttons/pkg/printer"
)

// Epoch is the synthetic time of step offset zero. File modification
// offsets are relative to it as well.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Line is one entry of the transcript.
type Line struct {
	At       time.Duration
	Event    string   // "press right", "release left", ...
	Messages []string // status messages displayed by this event
	Commands []string // printer commands issued by this event
}

func (l Line) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8s  %-14s", fmtOffset(l.At), l.Event)
	for _, m := range l.Messages {
		fmt.Fprintf(&b, " | %s", m)
	}
	if len(l.Commands) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(l.Commands, ", "))
	}
	return strings.TrimRight(b.String(), " ")
}

func fmtOffset(d time.Duration) string {
	return fmt.Sprintf("+%.3fs", d.Seconds())
}

// Result is the outcome of a run.
type Result struct {
	Name       string
	Transcript []Line
	// Failures lists the unmet expectations.
	Failures []string
	Events   uint64
	Metrics  *metrics.ButtonMetrics
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Write prints the transcript and failures.
func (r *Result) Write(w io.Writer) {
	fmt.Fprintf(w, "scenario: %s\n", r.Name)
	for _, l := range r.Transcript {
		fmt.Fprintln(w, l.String())
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "FAIL %s\n", f)
	}
	fmt.Fprintf(w, "%d accepted events, %d failures\n", r.Events, len(r.Failures))
}

// Runner holds the simulated environment of one scenario.
type Runner struct {
	sc      *Scenario
	sim     *gpio.Sim
	printer *printer.Memory
	files   *files.Memory
	ctrl    *buttons.Controller
	pins    [3]config.Pin
	now     time.Time
	log     *log.Logger

	result *Result
}

// NewRunner builds the environment described by sc.
func NewRunner(sc *Scenario) (*Runner, error) {
	defaults := config.Defaults()
	r := &Runner{
		sc:      sc,
		sim:     gpio.NewSim(defaults.LeftPin.Chip),
		printer: printer.NewMemory(),
		files:   files.NewMemory(),
		pins:    defaults.Pins(),
		now:     Epoch,
		log:     log.GetLogger("scenario"),
		result:  &Result{Name: sc.Name, Metrics: metrics.NewButtonMetrics()},
	}

	opts := buttons.DefaultOptions()
	if err := applySettings(&opts, sc.Settings); err != nil {
		return nil, err
	}
	opts.Clock = func() time.Time { return r.now }
	opts.Metrics = r.result.Metrics
	opts.Logger = r.log.WithPrefix("buttons")

	for _, f := range sc.Folders {
		r.files.AddFolder(opts.Origin, f)
	}
	for _, f := range sc.Files {
		origin := opts.Origin
		if f.Origin != "" {
			o, err := printer.ParseOrigin(f.Origin)
			if err != nil {
				return nil, fmt.Errorf("scenario: file %s: %w", f.Path, err)
			}
			origin = o
		}
		r.files.AddFile(origin, f.Path, Epoch.Add(f.Modified), f.Size)
	}

	p := sc.Printer
	if p.Job != "" {
		name := path.Base(p.Job)
		r.printer.SetJob(&printer.Job{Path: strings.Trim(p.Job, "/"), Name: name, Display: name, Origin: opts.Origin})
	}
	r.printer.SetPrinting(p.Printing)
	r.printer.SetClosed(p.Closed, !p.Unreachable)

	r.ctrl = buttons.New(r.printer, r.files, opts)
	return r, nil
}

func applySettings(opts *buttons.Options, s Settings) error {
	if s.ShortWindow > 0 {
		opts.Windows.Short = s.ShortWindow
	}
	if s.LongWindow > 0 {
		opts.Windows.Long = s.LongWindow
	}
	if opts.Windows.Long < opts.Windows.Short {
		return fmt.Errorf("scenario: long_window %s is shorter than short_window %s",
			opts.Windows.Long, opts.Windows.Short)
	}
	if s.Origin != "" {
		o, err := printer.ParseOrigin(s.Origin)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		opts.Origin = o
	}
	if len(s.Extensions) > 0 {
		opts.Extensions = s.Extensions
	}
	if s.Reconnect != nil {
		opts.Reconnect = *s.Reconnect
	}
	if s.ShowEventNumber != nil {
		opts.ShowEventNumber = *s.ShowEventNumber
	}
	return nil
}

// Run replays every step. The returned error reports setup problems;
// unmet expectations are collected in Result.Failures.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	for _, res := range r.ctrl.Start(r.sim, r.pins, 0) {
		if !res.OK() {
			return nil, res.Err
		}
	}
	defer r.ctrl.Stop()

	for i, st := range r.sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		r.step(i+1, st)
	}
	r.result.Events = r.ctrl.EventCount()
	return r.result, nil
}

func (r *Runner) step(n int, st Step) {
	r.now = Epoch.Add(st.At)
	if st.Printing != nil {
		r.printer.SetPrinting(*st.Printing)
	}
	if st.Closed != nil {
		r.printer.SetClosed(*st.Closed, !r.sc.Printer.Unreachable)
	}

	var stepMessages []string
	edge := func(ch buttons.Channel, asserted bool) {
		msgs, cmds := len(r.printer.Messages()), len(r.printer.Commands())
		r.sim.Set(r.pins[ch], asserted)

		verb := "release"
		if asserted {
			verb = "press"
		}
		line := Line{At: st.At, Event: verb + " " + ch.String()}
		line.Messages = r.printer.Messages()[msgs:]
		line.Commands = r.printer.Commands()[cmds:]
		stepMessages = append(stepMessages, line.Messages...)
		r.result.Transcript = append(r.result.Transcript, line)
	}

	for _, ch := range st.Hold {
		r.sim.SetQuiet(r.pins[ch], true)
	}
	for _, ch := range st.Press {
		edge(ch, true)
	}
	for _, ch := range st.Tap {
		edge(ch, true)
	}
	for _, ch := range st.Tap {
		edge(ch, false)
	}
	for _, ch := range st.Release {
		edge(ch, false)
	}

	r.check(n, st, stepMessages)
}

func (r *Runner) check(n int, st Step, msgs []string) {
	fail := func(format string, args ...interface{}) {
		msg := fmt.Sprintf("step %d (%s): ", n, fmtOffset(st.At)) + fmt.Sprintf(format, args...)
		r.result.Failures = append(r.result.Failures, msg)
		r.log.Warn("%s", msg)
	}
	if st.Expect != nil {
		got := ""
		if len(msgs) > 0 {
			got = msgs[len(msgs)-1]
		}
		if !matchMessage(got, *st.Expect) {
			fail("expected message %q, got %q", *st.Expect, got)
		}
	}
	if st.ExpectJob != nil {
		got := ""
		if job := r.printer.Job(); job != nil {
			got = job.Path
		}
		if got != strings.Trim(*st.ExpectJob, "/") {
			fail("expected job %q, got %q", *st.ExpectJob, got)
		}
	}
	if st.ExpectPrinting != nil && r.printer.IsPrinting() != *st.ExpectPrinting {
		fail("expected printing=%t", *st.ExpectPrinting)
	}
}

// matchMessage compares a displayed message against an expectation,
// ignoring a leading event number ("3 a.gcode" matches "a.gcode").
func matchMessage(got, want string) bool {
	if got == want {
		return true
	}
	if want == "" {
		return false
	}
	if i := strings.IndexByte(got, ' '); i > 0 && isDigits(got[:i]) {
		return got[i+1:] == want
	}
	return false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// Run loads and replays the scenario in file.
func Run(ctx context.Context, file string) (*Result, error) {
	sc, err := Load(file)
	if err != nil {
		return nil, err
	}
	r, err := NewRunner(sc)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
