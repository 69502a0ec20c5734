package scenario

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebuttons/pkg/buttons"
)

func TestBrowseScenario(t *testing.T) {
	res, err := Run(context.Background(), "testdata/browse.yaml")
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.True(t, res.Passed())
	assert.Equal(t, uint64(9), res.Events)
	assert.Equal(t, "browse, load newest, print and cancel", res.Name)

	var out bytes.Buffer
	res.Write(&out)
	assert.Contains(t, out.String(), "press right")
	assert.Contains(t, out.String(), "| 1 misc")
	assert.Contains(t, out.String(), "[select local:models/a.gcode]")
	assert.Contains(t, out.String(), "9 accepted events, 0 failures")
}

func run(t *testing.T, doc string) *Result {
	t.Helper()
	sc, err := Parse([]byte(doc))
	require.NoError(t, err)
	r, err := NewRunner(sc)
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestUnmetExpectations(t *testing.T) {
	res := run(t, `
files:
  - path: models/a.gcode
steps:
  - at: 0s
    tap: right
    expect: other
    expect_job: models/a.gcode
    expect_printing: true
`)
	require.Len(t, res.Failures, 3)
	assert.Contains(t, res.Failures[0], `expected message "other", got "1 models"`)
	assert.Contains(t, res.Failures[1], `expected job "models/a.gcode", got ""`)
	assert.Contains(t, res.Failures[2], "expected printing=true")
	assert.False(t, res.Passed())
}

func TestClosedPrinterReconnects(t *testing.T) {
	res := run(t, `
settings:
  show_event_number: false
files:
  - path: misc/x.gcode
printer:
  closed: true
steps:
  - at: 0s
    tap: right
    expect: ""
  - at: 10ms
    tap: right
    expect: misc
`)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Transcript, 4)
	assert.Equal(t, []string{"connect"}, res.Transcript[0].Commands)
	assert.Equal(t, []string{"misc"}, res.Transcript[2].Messages)
	assert.Equal(t, uint64(1), res.Events)
}

func TestUnreachablePrinter(t *testing.T) {
	res := run(t, `
printer:
  closed: true
  unreachable: true
steps:
  - at: 0s
    tap: center
    expect: ""
  - at: 1s
    closed: false
    tap: center
    expect: Select folder
`)
	assert.Empty(t, res.Failures)
}

func TestJobAndWindows(t *testing.T) {
	res := run(t, `
settings:
  short_window: 500ms
  long_window: 2s
  extensions: [.gco]
files:
  - path: parts/a.gco
  - path: parts/b.gcode
  - path: parts/c.gco
printer:
  job: parts/a.gco
steps:
  - at: 0s
    tap: r
    expect: c.gco
  - at: 400ms
    tap: r
    expect: ""
  - at: 500ms
    tap: r
    expect: a.gco
    expect_job: /parts/a.gco
`)
	assert.Empty(t, res.Failures)
}

func TestUnselectCombo(t *testing.T) {
	res := run(t, `
files:
  - path: parts/a.gcode
printer:
  job: parts/a.gcode
steps:
  - at: 0s
    hold: left
    tap: right
    release: left
    expect: Select folder
    expect_job: ""
`)
	assert.Empty(t, res.Failures)
}

func TestParseButtons(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - at: 1s
    press: [left, Center]
    release: right
`))
	require.NoError(t, err)
	require.Len(t, sc.Steps, 1)
	st := sc.Steps[0]
	assert.Equal(t, time.Second, st.At)
	assert.Equal(t, Buttons{buttons.Left, buttons.Center}, st.Press)
	assert.Equal(t, Buttons{buttons.Right}, st.Release)
	assert.Nil(t, st.Expect)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown button": "steps:\n  - at: 0s\n    tap: up\n",
		"out of order":   "steps:\n  - at: 1s\n    tap: left\n  - at: 0s\n    tap: left\n",
		"bad duration":   "steps:\n  - at: soon\n",
		"file path":      "files:\n  - modified: 1m\n",
		"button map":     "steps:\n  - tap: {left: true}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestBadSettings(t *testing.T) {
	sc, err := Parse([]byte("settings:\n  short_window: 2s\n  long_window: 1s\n"))
	require.NoError(t, err)
	_, err = NewRunner(sc)
	assert.Error(t, err)

	sc, err = Parse([]byte("settings:\n  origin: usb\n"))
	require.NoError(t, err)
	_, err = NewRunner(sc)
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestMatchMessage(t *testing.T) {
	assert.True(t, matchMessage("3 a.gcode", "a.gcode"))
	assert.True(t, matchMessage("a.gcode", "a.gcode"))
	assert.True(t, matchMessage("", ""))
	assert.False(t, matchMessage("3 a.gcode", ""))
	assert.False(t, matchMessage("x a.gcode", "a.gcode"))
}
