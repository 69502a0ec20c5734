package gpio

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
)

func init() {
	register("periph", func(defaultChip string) (Driver, error) {
		return newPeriph()
	})
}

// periphDriver uses periph.io host drivers (memory mapped on a Pi,
// character device elsewhere). Pins are looked up by their registry name,
// so the chip prefix is ignored. Bounce suppression is done in software.
type periphDriver struct {
	claims claims
}

func newPeriph() (*periphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return &periphDriver{}, nil
}

func (d *periphDriver) Name() string { return "periph" }

func periphName(pin config.Pin) string {
	name := strings.ToUpper(pin.Name)
	if _, err := pin.Offset(); err == nil && !strings.HasPrefix(name, "GPIO") {
		return "GPIO" + name
	}
	return pin.Name
}

func (d *periphDriver) Open(pin config.Pin, bounce time.Duration, handler EdgeHandler) (Line, error) {
	name := periphName(pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.GPIOClaimError(pin.String(), errUnknownPin(name))
	}
	if !d.claims.claim(name) {
		return nil, errors.GPIOClaimError(pin.String(), errBusy)
	}

	pull := gpio.Float
	switch pin.Pull {
	case config.PullUp:
		pull = gpio.PullUp
	case config.PullDown:
		pull = gpio.PullDown
	}
	if err := p.In(pull, gpio.BothEdges); err != nil {
		d.claims.release(name)
		return nil, errors.GPIOClaimError(pin.String(), err)
	}

	l := &periphLine{pin: p, invert: pin.Invert, done: make(chan struct{})}
	l.release = func() { d.claims.release(name) }
	initial := l.level()
	go func() {
		defer close(l.done)
		watchEdges(initial, bounce, p.WaitForEdge, l.level, l.stopped.Load, func(asserted bool) {
			if handler != nil {
				handler(asserted)
			}
		})
	}()
	return l, nil
}

func (d *periphDriver) Close() error { return nil }

type periphLine struct {
	pin     gpio.PinIO
	invert  bool
	stopped atomic.Bool
	done    chan struct{}
	release func()
	once    sync.Once
}

func (l *periphLine) level() bool {
	return (l.pin.Read() == gpio.High) != l.invert
}

func (l *periphLine) Read() (bool, error) {
	return l.level(), nil
}

func (l *periphLine) Close() error {
	var err error
	l.once.Do(func() {
		l.stopped.Store(true)
		// Halt unblocks WaitForEdge
		err = l.pin.Halt()
		select {
		case <-l.done:
		case <-time.After(time.Second):
		}
		if inErr := l.pin.In(gpio.Float, gpio.NoEdge); inErr != nil && err == nil {
			err = inErr
		}
		l.release()
	})
	return err
}

type errUnknownPin string

func (e errUnknownPin) Error() string { return "unknown pin " + string(e) }
