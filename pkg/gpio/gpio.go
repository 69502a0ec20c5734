// Package gpio claims button input lines and delivers their edges.
//
// Levels are logical: true means the button is asserted (pressed), after
// the pin's "!" inversion has been applied. Handlers are called from a
// driver goroutine and must not block for long.
package gpio

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
)

// EdgeHandler receives the new logical level after each edge.
type EdgeHandler func(asserted bool)

// Line is a claimed input line.
type Line interface {
	// Read samples the current logical level.
	Read() (bool, error)
	// Close stops edge delivery and releases the line.
	Close() error
}

// Driver opens input lines on one GPIO backend.
type Driver interface {
	Name() string
	// Open claims pin as an input with edge detection on both edges.
	// Bounces shorter than bounce are suppressed.
	Open(pin config.Pin, bounce time.Duration, handler EdgeHandler) (Line, error)
	// Close releases the driver. Lines should be closed first.
	Close() error
}

type opener func(defaultChip string) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]opener{}
)

func register(name string, open opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = open
}

// Drivers returns the names of the available drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open creates the named driver. defaultChip is used for pins without a
// chip prefix.
func Open(name, defaultChip string) (Driver, error) {
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, errors.GPIODriverError(name, fmt.Errorf("driver not available on this platform"))
	}
	d, err := open(defaultChip)
	if err != nil {
		return nil, errors.GPIODriverError(name, err)
	}
	return d, nil
}

// claims tracks pins held by a driver so a second claim fails the same
// way on every backend.
type claims struct {
	mu   sync.Mutex
	held map[string]bool
}

func pinKey(pin config.Pin, defaultChip string) string {
	chip := pin.Chip
	if chip == "" {
		chip = defaultChip
	}
	return chip + ":" + pin.Name
}

func (c *claims) claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil {
		c.held = make(map[string]bool)
	}
	if c.held[key] {
		return false
	}
	c.held[key] = true
	return true
}

func (c *claims) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, key)
}

// errBusy is wrapped into claim errors for a pin already held.
var errBusy = stderrors.New("line busy")
