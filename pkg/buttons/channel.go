// Button channels and their asserted state
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buttons

import (
	"fmt"
	"strings"
)

// Channel identifies one of the three buttons.
type Channel int

const (
	Left Channel = iota
	Center
	Right
)

// Channels lists the valid channels in pin order.
var Channels = [...]Channel{Left, Center, Right}

// Valid reports whether c is one of Left, Center or Right.
func (c Channel) Valid() bool {
	return c >= Left && c <= Right
}

func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Center:
		return "center"
	case Right:
		return "right"
	}
	return fmt.Sprintf("channel%d", int(c))
}

// ParseChannel parses "left", "center" or "right" (or the first letter).
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return Left, nil
	case "center", "centre", "c":
		return Center, nil
	case "right", "r":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown button %q", s)
}

// Snapshot is the asserted state of every channel at one instant.
type Snapshot [3]bool

// Asserted reports whether c was pressed. Invalid channels are never
// asserted.
func (s Snapshot) Asserted(c Channel) bool {
	return c.Valid() && s[c]
}

// All reports whether all three channels were pressed together.
func (s Snapshot) All() bool {
	return s[Left] && s[Center] && s[Right]
}

// Tracker stores the last reported level of each channel. It is not safe
// for concurrent use; the Controller serializes access.
type Tracker struct {
	state Snapshot
}

// OnEdge records the new level of c. Repeating the same level is
// harmless. It returns false for an invalid channel.
func (t *Tracker) OnEdge(c Channel, asserted bool) bool {
	if !c.Valid() {
		return false
	}
	t.state[c] = asserted
	return true
}

// Set overwrites the level of c. Used when the level was sampled from
// the line rather than reported by an edge.
func (t *Tracker) Set(c Channel, asserted bool) {
	if c.Valid() {
		t.state[c] = asserted
	}
}

func (t *Tracker) IsAsserted(c Channel) bool {
	return t.state.Asserted(c)
}

func (t *Tracker) Snapshot() Snapshot {
	return t.state
}
