package gpio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
)

// scriptedPin replays a fixed sequence of wait results and levels.
type scriptedPin struct {
	steps   []scriptStep
	pos     int
	level   bool
	timeout []time.Duration
}

type scriptStep struct {
	edge  bool // wait result
	level bool // level after the edge
}

func (p *scriptedPin) wait(timeout time.Duration) bool {
	p.timeout = append(p.timeout, timeout)
	s := p.steps[p.pos]
	p.pos++
	if s.edge {
		p.level = s.level
	}
	return s.edge
}

func (p *scriptedPin) read() bool    { return p.level }
func (p *scriptedPin) stopped() bool { return p.pos >= len(p.steps) }

func TestWatchEdgesDebounced(t *testing.T) {
	p := &scriptedPin{steps: []scriptStep{
		{edge: true, level: true},  // press
		{edge: true, level: false}, // bounce
		{edge: true, level: true},  // bounce
		{edge: false},              // stable for bounce -> emit true
		{edge: true, level: false}, // release
		{edge: false},              // stable -> emit false
		{edge: true, level: true},  // glitch
		{edge: true, level: false}, // back to released
		{edge: false},              // stable at old level -> nothing
	}}
	var got []bool
	watchEdges(false, 10*time.Millisecond, p.wait, p.read, p.stopped, func(a bool) { got = append(got, a) })

	assert.Equal(t, []bool{true, false}, got)
	assert.Equal(t, time.Duration(-1), p.timeout[0], "idle wait must block")
	assert.Equal(t, 10*time.Millisecond, p.timeout[1], "pending change waits one bounce period")
}

func TestWatchEdgesNoBounce(t *testing.T) {
	p := &scriptedPin{steps: []scriptStep{
		{edge: true, level: true},
		{edge: true, level: true},
		{edge: true, level: false},
		{edge: false},
	}}
	var got []bool
	watchEdges(false, 0, p.wait, p.read, p.stopped, func(a bool) { got = append(got, a) })
	assert.Equal(t, []bool{true, false}, got)
}

func TestSimDriver(t *testing.T) {
	d, err := Open("sim", "")
	require.NoError(t, err)
	sim := d.(*Sim)
	assert.Equal(t, "sim", d.Name())

	pin := config.Pin{Name: "16"}
	var mu sync.Mutex
	var edges []bool
	line, err := d.Open(pin, 0, func(a bool) {
		mu.Lock()
		edges = append(edges, a)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.True(t, sim.Claimed(pin))

	// Same pin with an explicit default chip is the same line.
	_, err = d.Open(config.Pin{Chip: "gpiochip0", Name: "16"}, 0, nil)
	assert.True(t, errors.Is(err, errors.ErrGPIOClaim))
	assert.ErrorIs(t, err, errBusy)

	sim.Set(pin, true)
	sim.Set(pin, true) // no change, no edge
	v, err := line.Read()
	require.NoError(t, err)
	assert.True(t, v)
	sim.Set(pin, false)

	sim.SetQuiet(pin, true)
	v, _ = line.Read()
	assert.True(t, v)

	require.NoError(t, line.Close())
	require.NoError(t, line.Close())
	assert.False(t, sim.Claimed(pin))
	sim.Set(pin, false)

	mu.Lock()
	assert.Equal(t, []bool{true, false}, edges)
	mu.Unlock()

	// Released pins can be claimed again.
	line, err = d.Open(pin, 0, nil)
	require.NoError(t, err)
	line.Close()
}

func TestSimFailOpen(t *testing.T) {
	sim := NewSim("")
	pin := config.Pin{Name: "20"}
	sim.FailOpen(pin, assert.AnError)
	_, err := sim.Open(pin, 0, nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, sim.Claimed(pin))

	require.NoError(t, sim.Close())
	_, err = sim.Open(config.Pin{Name: "21"}, 0, nil)
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("wiringpi", "")
	assert.True(t, errors.Is(err, errors.ErrGPIODriver))
	assert.Contains(t, Drivers(), "sim")
	assert.Contains(t, Drivers(), "periph")
}

func TestPeriphName(t *testing.T) {
	assert.Equal(t, "GPIO16", periphName(config.Pin{Name: "16"}))
	assert.Equal(t, "GPIO16", periphName(config.Pin{Name: "GPIO16"}))
	assert.Equal(t, "P1_36", periphName(config.Pin{Name: "P1_36"}))
}
