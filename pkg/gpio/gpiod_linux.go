//go:build linux

package gpio

import (
	"sync"
	"time"

	"github.com/warthog618/gpiod"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
)

const consumer = "filebuttons"

func init() {
	register("gpiod", func(defaultChip string) (Driver, error) {
		return newGPIOD(defaultChip), nil
	})
}

// gpiodDriver uses the GPIO character device. Debounce, bias and
// active-low are handled by the kernel.
type gpiodDriver struct {
	defaultChip string
	claims      claims

	mu    sync.Mutex
	chips map[string]*gpiod.Chip
}

func newGPIOD(defaultChip string) *gpiodDriver {
	if defaultChip == "" {
		defaultChip = "gpiochip0"
	}
	return &gpiodDriver{defaultChip: defaultChip, chips: make(map[string]*gpiod.Chip)}
}

func (d *gpiodDriver) Name() string { return "gpiod" }

func (d *gpiodDriver) chip(name string) (*gpiod.Chip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.chips[name]; ok {
		return c, nil
	}
	c, err := gpiod.NewChip(name, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	d.chips[name] = c
	return c, nil
}

func (d *gpiodDriver) Open(pin config.Pin, bounce time.Duration, handler EdgeHandler) (Line, error) {
	offset, err := pin.Offset()
	if err != nil {
		return nil, errors.GPIOClaimError(pin.String(), err)
	}
	chipName := pin.Chip
	if chipName == "" {
		chipName = d.defaultChip
	}
	key := pinKey(pin, d.defaultChip)
	if !d.claims.claim(key) {
		return nil, errors.GPIOClaimError(pin.String(), errBusy)
	}

	chip, err := d.chip(chipName)
	if err != nil {
		d.claims.release(key)
		return nil, errors.GPIOClaimError(pin.String(), err)
	}

	opts := []gpiod.LineReqOption{
		gpiod.WithConsumer(consumer),
		gpiod.AsInput,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			if handler != nil {
				handler(evt.Type == gpiod.LineEventRisingEdge)
			}
		}),
	}
	if bounce > 0 {
		opts = append(opts, gpiod.WithDebounce(bounce))
	}
	switch pin.Pull {
	case config.PullUp:
		opts = append(opts, gpiod.WithPullUp)
	case config.PullDown:
		opts = append(opts, gpiod.WithPullDown)
	default:
		opts = append(opts, gpiod.WithBiasDisabled)
	}
	if pin.Invert {
		opts = append(opts, gpiod.AsActiveLow)
	}

	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		d.claims.release(key)
		return nil, errors.GPIOClaimError(pin.String(), err)
	}
	return &gpiodLine{line: line, pin: pin, release: func() { d.claims.release(key) }}, nil
}

func (d *gpiodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for name, c := range d.chips {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(d.chips, name)
	}
	return first
}

type gpiodLine struct {
	line    *gpiod.Line
	pin     config.Pin
	release func()
	once    sync.Once
}

func (l *gpiodLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, errors.GPIOReadError(l.pin.String(), err)
	}
	return v == 1, nil
}

func (l *gpiodLine) Close() error {
	var err error
	l.once.Do(func() {
		err = l.line.Close()
		l.release()
	})
	return err
}
