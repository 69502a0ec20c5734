// Quiescence gate between accepted button events
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buttons

import "time"

// Class selects how long the gate stays closed after an accepted event.
type Class int

const (
	// Short follows navigation and status actions.
	Short Class = iota
	// Long follows actions that change the job: start, cancel, unselect
	// and newest-file load.
	Long
)

func (c Class) String() string {
	if c == Long {
		return "long"
	}
	return "short"
}

// Windows holds the duration of each class.
type Windows struct {
	Short time.Duration
	Long  time.Duration
}

// DefaultWindows returns the 100ms / 1s windows.
func DefaultWindows() Windows {
	return Windows{Short: 100 * time.Millisecond, Long: time.Second}
}

// Duration returns the window length of class c.
func (w Windows) Duration(c Class) time.Duration {
	if c == Long {
		return w.Long
	}
	return w.Short
}

// Gate admits an event only once the deadline set by the previous
// accepted event has passed.
type Gate struct {
	windows  Windows
	deadline time.Time
	count    uint64
}

// NewGate returns a gate that is open at now.
func NewGate(now time.Time, w Windows) *Gate {
	return &Gate{windows: w, deadline: now}
}

// Open reports whether an event at now would be accepted. It does not
// change the gate.
func (g *Gate) Open(now time.Time) bool {
	return !now.Before(g.deadline)
}

// Accept arms the gate for class starting at now and counts the event.
func (g *Gate) Accept(now time.Time, class Class) {
	g.deadline = now.Add(g.windows.Duration(class))
	g.count++
}

// TryAccept accepts the event when the gate is open. A rejected event
// leaves the gate untouched.
func (g *Gate) TryAccept(now time.Time, class Class) bool {
	if !g.Open(now) {
		return false
	}
	g.Accept(now, class)
	return true
}

// Count returns the number of accepted events.
func (g *Gate) Count() uint64 { return g.count }

// Deadline returns the earliest time the next event is accepted.
func (g *Gate) Deadline() time.Time { return g.deadline }

func (g *Gate) Windows() Windows { return g.windows }

// SetWindows changes the class durations for later events. The current
// deadline is kept.
func (g *Gate) SetWindows(w Windows) { g.windows = w }
