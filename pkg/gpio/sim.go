package gpio

import (
	"fmt"
	"sync"
	"time"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
)

func init() {
	register("sim", func(defaultChip string) (Driver, error) {
		return NewSim(defaultChip), nil
	})
}

// Sim is an in-memory driver. Levels are changed with Set, which calls
// the line's handler synchronously.
type Sim struct {
	defaultChip string
	claims      claims

	mu     sync.Mutex
	levels map[string]bool
	lines  map[string]*simLine
	fail   map[string]error
	closed bool
}

// NewSim creates a simulated driver.
func NewSim(defaultChip string) *Sim {
	if defaultChip == "" {
		defaultChip = "gpiochip0"
	}
	return &Sim{
		defaultChip: defaultChip,
		levels:      make(map[string]bool),
		lines:       make(map[string]*simLine),
		fail:        make(map[string]error),
	}
}

func (s *Sim) Name() string { return "sim" }

// FailOpen makes Open of pin fail with err.
func (s *Sim) FailOpen(pin config.Pin, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[pinKey(pin, s.defaultChip)] = err
}

func (s *Sim) Open(pin config.Pin, bounce time.Duration, handler EdgeHandler) (Line, error) {
	key := pinKey(pin, s.defaultChip)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.GPIOClaimError(pin.String(), fmt.Errorf("driver closed"))
	}
	if err := s.fail[key]; err != nil {
		return nil, errors.GPIOClaimError(pin.String(), err)
	}
	if !s.claims.claim(key) {
		return nil, errors.GPIOClaimError(pin.String(), errBusy)
	}
	l := &simLine{sim: s, key: key, handler: handler}
	s.lines[key] = l
	return l, nil
}

// Set changes the logical level of pin and notifies its open line when
// the level changed.
func (s *Sim) Set(pin config.Pin, asserted bool) {
	key := pinKey(pin, s.defaultChip)
	s.mu.Lock()
	prev := s.levels[key]
	s.levels[key] = asserted
	l := s.lines[key]
	s.mu.Unlock()

	if l != nil && prev != asserted {
		l.notify(asserted)
	}
}

// SetQuiet changes the level of pin without delivering an edge, as a
// read would observe it between two missed interrupts.
func (s *Sim) SetQuiet(pin config.Pin, asserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[pinKey(pin, s.defaultChip)] = asserted
}

// Level returns the current logical level of pin.
func (s *Sim) Level(pin config.Pin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pinKey(pin, s.defaultChip)]
}

// Claimed reports whether pin is held by an open line.
func (s *Sim) Claimed(pin config.Pin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lines[pinKey(pin, s.defaultChip)]
	return ok
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type simLine struct {
	sim     *Sim
	key     string
	handler EdgeHandler

	mu     sync.Mutex
	closed bool
}

func (l *simLine) notify(asserted bool) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if !closed && l.handler != nil {
		l.handler(asserted)
	}
}

func (l *simLine) Read() (bool, error) {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	return l.sim.levels[l.key], nil
}

func (l *simLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.sim.mu.Lock()
	delete(l.sim.lines, l.key)
	l.sim.mu.Unlock()
	l.sim.claims.release(l.key)
	return nil
}
