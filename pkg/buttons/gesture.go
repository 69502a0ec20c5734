// Gesture resolution from the triggering channel
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package buttons

import "fmt"

// GestureKind tags a Gesture.
type GestureKind int

const (
	Plain GestureKind = iota
	Combo
	Unknown
)

// Gesture is one press interpreted together with the buttons held at
// that moment.
type Gesture struct {
	Kind GestureKind
	// Primary is the channel that triggered.
	Primary Channel
	// Secondary is the held partner of a Combo.
	Secondary Channel
}

func PlainGesture(c Channel) Gesture { return Gesture{Kind: Plain, Primary: c} }

func ComboGesture(primary, secondary Channel) Gesture {
	return Gesture{Kind: Combo, Primary: primary, Secondary: secondary}
}

// Is reports whether g is a combo of a and b, in either order.
func (g Gesture) Is(a, b Channel) bool {
	return g.Kind == Combo &&
		((g.Primary == a && g.Secondary == b) || (g.Primary == b && g.Secondary == a))
}

func (g Gesture) String() string {
	switch g.Kind {
	case Plain:
		return g.Primary.String()
	case Combo:
		return fmt.Sprintf("%s+%s", g.Primary, g.Secondary)
	}
	return fmt.Sprintf("unknown(%d)", int(g.Primary))
}

// Resolve interprets a press of trigger given the levels in s.
//
// Center pairs with Left before Right. A side button only pairs with the
// opposite side, so three held buttons resolve like Center+Left (or
// Left+Right from a side); cancelling on all three is decided by the
// dispatcher, not here.
func Resolve(trigger Channel, s Snapshot) Gesture {
	switch trigger {
	case Center:
		if s[Left] {
			return ComboGesture(Center, Left)
		}
		if s[Right] {
			return ComboGesture(Center, Right)
		}
	case Left:
		if s[Right] {
			return ComboGesture(Left, Right)
		}
	case Right:
		if s[Left] {
			return ComboGesture(Right, Left)
		}
	default:
		return Gesture{Kind: Unknown, Primary: trigger}
	}
	return PlainGesture(trigger)
}
