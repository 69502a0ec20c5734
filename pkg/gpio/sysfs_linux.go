//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"filebuttons/pkg/config"
	"filebuttons/pkg/errors"
	"filebuttons/pkg/log"
)

func init() {
	register("sysfs", func(defaultChip string) (Driver, error) {
		return newSysfs("/sys/class/gpio")
	})
}

// sysfsDriver uses the legacy /sys/class/gpio interface. Pins are global
// GPIO numbers; bias cannot be configured and must come from the board.
type sysfsDriver struct {
	root   string
	claims claims
	log    *log.Logger
}

func newSysfs(root string) (*sysfsDriver, error) {
	if _, err := os.Stat(filepath.Join(root, "export")); err != nil {
		return nil, err
	}
	return &sysfsDriver{root: root, log: log.GetLogger("gpio")}, nil
}

func (d *sysfsDriver) Name() string { return "sysfs" }

func (d *sysfsDriver) write(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func (d *sysfsDriver) Open(pin config.Pin, bounce time.Duration, handler EdgeHandler) (Line, error) {
	num, err := pin.Offset()
	if err != nil {
		return nil, errors.GPIOClaimError(pin.String(), err)
	}
	key := strconv.Itoa(num)
	if !d.claims.claim(key) {
		return nil, errors.GPIOClaimError(pin.String(), errBusy)
	}
	if pin.Pull != config.PullNone {
		d.log.WithField("pin", pin.String()).Warn("sysfs cannot set pull, using board default")
	}

	dir := filepath.Join(d.root, "gpio"+key)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := d.write(filepath.Join(d.root, "export"), key); err != nil {
			d.claims.release(key)
			return nil, errors.GPIOClaimError(pin.String(), err)
		}
	}

	active := "0"
	if pin.Invert {
		active = "1"
	}
	for _, kv := range [][2]string{{"direction", "in"}, {"active_low", active}, {"edge", "both"}} {
		if err := d.write(filepath.Join(dir, kv[0]), kv[1]); err != nil {
			d.unexport(key)
			return nil, errors.GPIOClaimError(pin.String(), fmt.Errorf("set %s: %w", kv[0], err))
		}
	}

	f, err := os.Open(filepath.Join(dir, "value"))
	if err != nil {
		d.unexport(key)
		return nil, errors.GPIOClaimError(pin.String(), err)
	}
	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		f.Close()
		d.unexport(key)
		return nil, errors.GPIOClaimError(pin.String(), err)
	}

	l := &sysfsLine{
		pin:     pin,
		fd:      int(f.Fd()),
		file:    f,
		wake:    wake,
		done:    make(chan struct{}),
		release: func() { d.unexport(key) },
	}
	initial, _ := l.Read()
	go func() {
		defer close(l.done)
		watchEdges(initial, bounce, l.wait, func() bool {
			v, _ := l.Read()
			return v
		}, l.isStopped, func(asserted bool) {
			if handler != nil {
				handler(asserted)
			}
		})
	}()
	return l, nil
}

func (d *sysfsDriver) unexport(key string) {
	_ = d.write(filepath.Join(d.root, "unexport"), key)
	d.claims.release(key)
}

func (d *sysfsDriver) Close() error { return nil }

type sysfsLine struct {
	pin  config.Pin
	fd   int
	file *os.File
	wake [2]int

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	release func()
	once    sync.Once
}

func (l *sysfsLine) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// wait polls the value file for an edge (POLLPRI) or the wake pipe.
func (l *sysfsLine) wait(timeout time.Duration) bool {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
		if ms <= 0 {
			ms = 1
		}
	}
	pfd := []unix.PollFd{
		{Fd: int32(l.fd), Events: unix.POLLPRI | unix.POLLERR},
		{Fd: int32(l.wake[0]), Events: unix.POLLIN},
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil || n == 0 {
		return false
	}
	if pfd[1].Revents != 0 {
		return false
	}
	return pfd[0].Revents&(unix.POLLPRI|unix.POLLERR) != 0
}

func (l *sysfsLine) Read() (bool, error) {
	buf := make([]byte, 4)
	n, err := unix.Pread(l.fd, buf, 0)
	if err != nil {
		return false, errors.GPIOReadError(l.pin.String(), err)
	}
	return strings.TrimSpace(string(buf[:n])) == "1", nil
}

func (l *sysfsLine) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		_, _ = unix.Write(l.wake[1], []byte{0})
		<-l.done
		unix.Close(l.wake[0])
		unix.Close(l.wake[1])
		err = l.file.Close()
		l.release()
	})
	return err
}
