package config

import (
	"strconv"
	"strings"
)

// Pull describes the bias applied to an input pin.
type Pull int

const (
	PullNone Pull = 0
	PullUp   Pull = 1  // ^ prefix
	PullDown Pull = -1 // ~ prefix
)

// String returns the config prefix for the pull.
func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Pin represents a parsed pin specification.
type Pin struct {
	Name   string // Line name or number (e.g., "16", "GPIO16")
	Chip   string // Chip name (e.g., "gpiochip0"); empty means driver default
	Invert bool   // Active-low (! prefix)
	Pull   Pull
}

// String renders the pin back into config syntax.
func (p Pin) String() string {
	var sb strings.Builder
	switch p.Pull {
	case PullUp:
		sb.WriteByte('^')
	case PullDown:
		sb.WriteByte('~')
	}
	if p.Invert {
		sb.WriteByte('!')
	}
	if p.Chip != "" {
		sb.WriteString(p.Chip)
		sb.WriteByte(':')
	}
	sb.WriteString(p.Name)
	return sb.String()
}

// Offset returns the numeric line offset of the pin, accepting both "16"
// and "GPIO16" forms.
func (p Pin) Offset() (int, error) {
	name := strings.TrimPrefix(strings.ToUpper(p.Name), "GPIO")
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return 0, NewConfigError("", "", "pin "+p.Name+" is not a line number")
	}
	return n, nil
}

// ParsePin parses a pin specification string.
// Format: [^|~][!][chip:]pin_name
// Examples: "16", "~gpiochip0:16", "^!GPIO20"
func ParsePin(desc string) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin specification")
	}

	var p Pin

	if d[0] == '^' {
		p.Pull = PullUp
		d = strings.TrimSpace(d[1:])
	} else if d[0] == '~' {
		p.Pull = PullDown
		d = strings.TrimSpace(d[1:])
	}

	if len(d) > 0 && d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}

	if idx := strings.Index(d, ":"); idx >= 0 {
		p.Chip = strings.TrimSpace(d[:idx])
		d = strings.TrimSpace(d[idx+1:])
	}

	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin name in specification: "+desc)
	}
	if strings.ContainsAny(d, "^~!:") {
		return Pin{}, NewConfigError("", "", "invalid characters in pin name: "+desc)
	}

	p.Name = d
	return p, nil
}
