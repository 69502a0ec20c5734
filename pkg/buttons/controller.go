// Button controller
//
// Turns edges from three GPIO buttons into file navigation, print start
// and print cancel on the printer host.
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package buttons interprets presses of the Left, Center and Right
// buttons. Edges update a Tracker; a press passes the Gate, is resolved
// into a Gesture and dispatched against the printer's current job.
package buttons

import (
	"context"
	"fmt"
	"sync"
	"time"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
	"filebuttons/pkg/gpio"
	"filebuttons/pkg/log"
	"filebuttons/pkg/metrics"
	"filebuttons/pkg/printer"
)

// Options configures a Controller.
type Options struct {
	Windows    Windows
	Origin     printer.Origin
	Extensions []string
	Reconnect  bool
	// ShowEventNumber prefixes status messages with the event count.
	ShowEventNumber bool
	// SampleLevels re-reads the other lines when a press is resolved,
	// covering edges a driver dropped.
	SampleLevels bool
	// CallTimeout bounds each press's printer and listing calls. Zero
	// means no bound.
	CallTimeout time.Duration

	Metrics *metrics.ButtonMetrics
	Logger  *log.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Post, when set, receives every edge handler call so edges from
	// driver goroutines are handled on one queue.
	Post func(func()) bool
}

// DefaultOptions returns the options matching config.Defaults.
func DefaultOptions() Options {
	return Options{
		Windows:         DefaultWindows(),
		Origin:          printer.OriginLocal,
		Extensions:      []string{".gcode", ".gco", ".g"},
		Reconnect:       true,
		ShowEventNumber: true,
		SampleLevels:    true,
	}
}

// OptionsFromSettings copies the controller options out of s. Metrics,
// logger, clock and queue are left unset.
func OptionsFromSettings(s *config.Settings) Options {
	origin, err := printer.ParseOrigin(s.Origin)
	if err != nil {
		origin = printer.OriginLocal
	}
	return Options{
		Windows:         Windows{Short: s.ShortWindow, Long: s.LongWindow},
		Origin:          origin,
		Extensions:      append([]string(nil), s.Extensions...),
		Reconnect:       s.Reconnect,
		ShowEventNumber: s.ShowEventNumber,
		SampleLevels:    s.SampleLevels,
		CallTimeout:     s.CallTimeout,
	}
}

// State is everything the controller remembers between presses.
type State struct {
	Tracker Tracker
	Gate    *Gate
	Cursor  Cursor
}

// SetupResult reports the claim of one channel's pin.
type SetupResult struct {
	Channel Channel
	Pin     config.Pin
	Err     error
}

// OK reports whether the pin was claimed.
func (r SetupResult) OK() bool { return r.Err == nil }

// Controller owns the button state and the claimed lines. Every edge is
// handled under one mutex, from tracker update to printer side effects.
type Controller struct {
	mu    sync.Mutex
	opts  Options
	state State
	disp  *Dispatcher
	log   *log.Logger

	lines   [3]gpio.Line // guarded by mu
	stopped bool         // guarded by mu; set by Stop, cleared by Start

	// fixed at construction
	clock   func() time.Time
	post    func(func()) bool
	metrics *metrics.ButtonMetrics

	lifecycle sync.Mutex
	started   bool
}

// New creates a controller using p for printer control and l for
// listings.
func New(p printer.Printer, l printer.Lister, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger("buttons")
	}
	if opts.Origin == "" {
		opts.Origin = printer.OriginLocal
	}
	if opts.Windows == (Windows{}) {
		opts.Windows = DefaultWindows()
	}
	c := &Controller{
		opts:    opts,
		disp:    NewDispatcher(p, l),
		log:     opts.Logger,
		clock:   opts.Clock,
		post:    opts.Post,
		metrics: opts.Metrics,
	}
	c.disp.log = opts.Logger.WithPrefix("dispatch")
	c.applyOptions()
	c.state = State{Gate: NewGate(opts.Clock(), opts.Windows), Cursor: NewCursor()}
	return c
}

func (c *Controller) applyOptions() {
	c.disp.Origin = c.opts.Origin
	c.disp.Extensions = c.opts.Extensions
	c.disp.Reconnect = c.opts.Reconnect
}

// Reconfigure applies options that may change while running. Metrics,
// logger, clock and queue keep their current values.
func (c *Controller) Reconfigure(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts.Metrics = c.metrics
	opts.Logger = c.opts.Logger
	opts.Clock = c.clock
	opts.Post = c.post
	if opts.Origin == "" {
		opts.Origin = c.opts.Origin
	}
	if opts.Origin != c.opts.Origin {
		c.state.Cursor.Reset()
	}
	c.opts = opts
	c.applyOptions()
	c.state.Gate.SetWindows(opts.Windows)
	c.log.WithFields(log.Fields{
		"short_window": opts.Windows.Short,
		"long_window":  opts.Windows.Long,
		"origin":       opts.Origin,
	}).Info("controller reconfigured")
}

// Start claims the three pins on driver and registers their edge
// handlers. A pin that cannot be claimed is reported in its SetupResult
// and the others are still configured. Calling Start again while started
// returns nil.
func (c *Controller) Start(driver gpio.Driver, pins [3]config.Pin, bounce time.Duration) []SetupResult {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()

	seen := make(map[string]Channel)
	results := make([]SetupResult, 0, len(Channels))
	for _, ch := range Channels {
		pin := pins[ch]
		res := SetupResult{Channel: ch, Pin: pin}
		entry := c.log.WithFields(log.Fields{"channel": ch.String(), "pin": pin.String()})

		line, err := driver.Open(pin, bounce, c.edgeHandler(ch))
		if err != nil {
			res.Err = err
			if prev, dup := seen[pin.Chip+":"+pin.Name]; dup {
				entry.WithError(err).Errorf("cannot set up pin, it is already assigned to the %s button", prev)
			} else {
				entry.WithError(err).Error("cannot set up pin, check that the same pin is not assigned to multiple buttons")
			}
		} else {
			c.mu.Lock()
			c.lines[ch] = line
			c.mu.Unlock()
			entry.Info("edge detection added")
		}
		seen[pin.Chip+":"+pin.Name] = ch
		if c.metrics != nil {
			c.metrics.SetLineClaimed(ch.String(), err == nil)
		}
		results = append(results, res)
	}

	c.mu.Lock()
	if c.opts.SampleLevels {
		c.sampleLocked()
	}
	c.mu.Unlock()
	return results
}

// Stop releases every claimed line. It is safe to call more than once
// and before Start.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	c.mu.Lock()
	lines := c.lines
	c.lines = [3]gpio.Line{}
	c.stopped = true
	c.mu.Unlock()

	// lines are closed without holding mu: a driver may wait for a
	// handler that is blocked on it
	var first error
	for _, ch := range Channels {
		line := lines[ch]
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil && first == nil {
			first = err
		}
		if c.metrics != nil {
			c.metrics.SetLineClaimed(ch.String(), false)
		}
	}
	c.log.Info("lines released")
	return first
}

// Started reports whether Start has run without a later Stop.
func (c *Controller) Started() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.started
}

func (c *Controller) edgeHandler(ch Channel) gpio.EdgeHandler {
	return func(asserted bool) {
		if c.post != nil {
			// sample the time at the edge, not when the queue gets to it
			now := c.clock()
			if c.post(func() { c.HandleEdgeAt(ch, asserted, now) }) {
				return
			}
		}
		c.HandleEdge(ch, asserted)
	}
}

// HandleEdge processes an edge on ch at the current time.
func (c *Controller) HandleEdge(ch Channel, asserted bool) Action {
	return c.HandleEdgeAt(ch, asserted, c.clock())
}

// HandleEdgeAt processes an edge on ch observed at now. Releases only
// update the tracker. A press rejected by the gate has no effect at all.
// The returned Action is zero for releases, rejected presses and edges
// still queued when Stop ran.
func (c *Controller) HandleEdgeAt(ch Channel, asserted bool, now time.Time) Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return Action{}
	}

	m := c.metrics
	c.state.Tracker.OnEdge(ch, asserted)
	if m != nil {
		m.RecordEdge(ch.String(), asserted)
	}
	if !asserted {
		return Action{}
	}
	if !c.state.Gate.Open(now) {
		if m != nil {
			m.RecordEvent(metrics.EventRejected)
		}
		return Action{}
	}
	c.log.Debug("FileButtons channel %d (%s)", int(ch), ch)

	if c.opts.SampleLevels {
		c.sampleLocked()
		// the trigger is pressed even if the line already bounced back
		c.state.Tracker.Set(ch, true)
	}
	snap := c.state.Tracker.Snapshot()
	g := Resolve(ch, snap)

	ctx := context.Background()
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	var act Action
	jc, err := ReadContext(ctx, c.disp.Printer)
	if err != nil {
		act = failed(errors.PrinterUnreachableError("cannot read printer state", err))
	} else {
		act = c.disp.Dispatch(ctx, g, snap, jc, &c.state.Cursor)
	}
	if m != nil {
		connected := err == nil && !jc.Closed
		if act.Kind == ActionReconnect && act.Err == nil {
			connected = true
		}
		m.SetPrinterConnected(connected)
	}

	entry := c.log.WithFields(log.Fields{"gesture": g.String(), "action": act.Kind.String()})
	if act.Err != nil {
		entry = entry.WithError(act.Err)
		if m != nil {
			m.RecordFailure(string(errors.CodeOf(act.Err)))
		}
	}

	if !act.Arm {
		entry.Debug("press not handled")
		if m != nil {
			m.RecordEvent(metrics.EventIgnored)
		}
		return act
	}

	if act.Message != "" {
		msg := act.Message
		if c.opts.ShowEventNumber {
			msg = fmt.Sprintf("%d %s", c.state.Gate.Count()+1, msg)
		}
		if derr := c.disp.Printer.DisplayMessage(ctx, msg); derr != nil {
			entry.WithError(derr).Warn("cannot display status message")
		}
	}
	c.state.Gate.Accept(now, act.Class)

	if m != nil {
		m.RecordEvent(metrics.EventAccepted)
		m.RecordAction(act.Kind.String(), time.Since(start))
	}
	if act.Kind == ActionFailed {
		entry.Warn(act.Message)
	} else {
		entry.WithField("class", act.Class.String()).Info(act.Message)
	}
	return act
}

// sampleLocked reads the current level of every claimed line into the
// tracker.
func (c *Controller) sampleLocked() {
	for _, ch := range Channels {
		line := c.lines[ch]
		if line == nil {
			continue
		}
		v, err := line.Read()
		if err != nil {
			c.log.WithError(err).WithField("channel", ch.String()).Debug("level read failed")
			continue
		}
		c.state.Tracker.Set(ch, v)
	}
}

// Snapshot returns the tracked levels.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Tracker.Snapshot()
}

// EventCount returns the number of accepted presses.
func (c *Controller) EventCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Gate.Count()
}

// Deadline returns the time the gate opens again.
func (c *Controller) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Gate.Deadline()
}

// Cursor returns the folder cursor position as stored.
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Cursor.index
}
