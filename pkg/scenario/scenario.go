// Package scenario replays scripted button sessions against a
// controller backed by the sim GPIO driver, an in-memory printer and an
// in-memory file tree. Scenarios are YAML documents:
//
//	name: browse and print
//	files:
//	  - path: models/a.gcode
//	    modified: 10m
//	printer:
//	  job: models/a.gcode
//	steps:
//	  - at: 0s
//	    tap: right
//	    expect: a.gcode
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"filebuttons/pkg/buttons"
)

// Scenario is one scripted session.
type Scenario struct {
	Name     string   `yaml:"name"`
	Settings Settings `yaml:"settings"`
	Folders  []string `yaml:"folders"`
	Files    []File   `yaml:"files"`
	Printer  Printer  `yaml:"printer"`
	Steps    []Step   `yaml:"steps"`
}

// Settings overrides controller options. Unset fields keep the
// controller defaults.
type Settings struct {
	ShortWindow     time.Duration `yaml:"short_window"`
	LongWindow      time.Duration `yaml:"long_window"`
	Origin          string        `yaml:"origin"`
	Extensions      []string      `yaml:"extensions"`
	Reconnect       *bool         `yaml:"reconnect"`
	ShowEventNumber *bool         `yaml:"show_event_number"`
}

// File is a file in the simulated tree. Modified is an offset from the
// scenario epoch.
type File struct {
	Path     string        `yaml:"path"`
	Origin   string        `yaml:"origin"`
	Modified time.Duration `yaml:"modified"`
	Size     int64         `yaml:"size"`
}

// Printer is the initial printer state.
type Printer struct {
	Job      string `yaml:"job"`
	Printing bool   `yaml:"printing"`
	Closed   bool   `yaml:"closed"`
	// Unreachable makes reconnect attempts fail.
	Unreachable bool `yaml:"unreachable"`
}

// Step happens at a fixed offset from the start. Press, Release and Tap
// name one or more buttons; all presses of a step are applied before
// its releases. Hold asserts buttons without an edge, like a press the
// driver never reported, so the next press sees them as held.
type Step struct {
	At time.Duration `yaml:"at"`

	Hold    Buttons `yaml:"hold"`
	Press   Buttons `yaml:"press"`
	Release Buttons `yaml:"release"`
	Tap     Buttons `yaml:"tap"`

	// External printer changes applied before the buttons.
	Printing *bool `yaml:"printing"`
	Closed   *bool `yaml:"closed"`

	// Expect is the last status message the step must display; an
	// empty string requires that nothing is displayed.
	Expect *string `yaml:"expect"`
	// ExpectJob is the selected file path after the step, "" for none.
	ExpectJob      *string `yaml:"expect_job"`
	ExpectPrinting *bool   `yaml:"expect_printing"`
}

// Buttons accepts a single name ("left") or a list.
type Buttons []buttons.Channel

func (b *Buttons) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	switch node.Kind {
	case yaml.ScalarNode:
		names = []string{node.Value}
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: expected a button name or list", node.Line)
	}
	out := make(Buttons, 0, len(names))
	for _, name := range names {
		ch, err := buttons.ParseChannel(name)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		out = append(out, ch)
	}
	*b = out
	return nil
}

// Parse decodes a scenario and checks its steps.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

func (s *Scenario) validate() error {
	var last time.Duration
	for i, st := range s.Steps {
		if st.At < last {
			return fmt.Errorf("scenario: step %d at %s is before the previous step (%s)", i+1, st.At, last)
		}
		last = st.At
	}
	for _, f := range s.Files {
		if f.Path == "" {
			return fmt.Errorf("scenario: file without path")
		}
	}
	return nil
}
