package printer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
)

// ErrNoJob is returned by StartPrint when no file is selected.
var ErrNoJob = errors.New("printer: no file selected")

// Memory is an in-memory Printer. It records every command it receives.
type Memory struct {
	mu sync.Mutex

	closed     bool
	reconnects bool // Connect succeeds
	job        *Job
	printing   bool

	// failures maps a command name to the error it returns
	failures map[string]error

	messages []string
	commands []string
}

// NewMemory creates a connected, idle printer with no job.
func NewMemory() *Memory {
	return &Memory{reconnects: true, failures: make(map[string]error)}
}

// SetClosed marks the connection closed. reconnects controls whether a
// later Connect restores it.
func (m *Memory) SetClosed(closed, reconnects bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = closed
	m.reconnects = reconnects
}

// SetJob loads a job without recording a command.
func (m *Memory) SetJob(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job = job
}

// SetPrinting sets the printing flag without recording a command.
func (m *Memory) SetPrinting(printing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printing = printing
}

// Fail makes the named command ("select", "start", "cancel", "unselect",
// "display", "job", "connect") return err. A nil err clears it.
func (m *Memory) Fail(command string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, command)
		return
	}
	m.failures[command] = err
}

// Messages returns the status messages displayed so far.
func (m *Memory) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// LastMessage returns the most recent status message, or "".
func (m *Memory) LastMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1]
}

// Commands returns the recorded commands, e.g. "select local:a/b.gcode".
func (m *Memory) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Job returns the loaded job without recording a command.
func (m *Memory) Job() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return nil
	}
	j := *m.job
	return &j
}

// IsPrinting returns the printing flag without recording a command.
func (m *Memory) IsPrinting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.printing
}

func (m *Memory) record(cmd string) error {
	name := cmd
	for i, c := range cmd {
		if c == ' ' {
			name = cmd[:i]
			break
		}
	}
	m.commands = append(m.commands, cmd)
	return m.failures[name]
}

func (m *Memory) Closed(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("connect"); err != nil {
		return err
	}
	if !m.reconnects {
		return errors.New("printer: connection refused")
	}
	m.closed = false
	return nil
}

func (m *Memory) CurrentJob(ctx context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["job"]; err != nil {
		return nil, err
	}
	if m.job == nil {
		return nil, nil
	}
	j := *m.job
	return &j, nil
}

func (m *Memory) Printing(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.printing, nil
}

func (m *Memory) DisplayMessage(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["display"]; err != nil {
		return err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) SelectFile(ctx context.Context, p string, origin Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("select %s:%s", origin, p)); err != nil {
		return err
	}
	name := path.Base(p)
	m.job = &Job{Path: p, Name: name, Display: name, Origin: origin}
	return nil
}

func (m *Memory) StartPrint(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("start"); err != nil {
		return err
	}
	if m.job == nil {
		return ErrNoJob
	}
	m.printing = true
	return nil
}

func (m *Memory) CancelPrint(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("cancel"); err != nil {
		return err
	}
	m.printing = false
	return nil
}

func (m *Memory) UnselectFile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("unselect"); err != nil {
		return err
	}
	m.job = nil
	return nil
}
