package moonraker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/log"
	"filebuttons/pkg/printer"
)

const backend = "moonraker"

// Klippy states reported by printer.info and notifications.
const (
	StateReady        = "ready"
	StateStartup      = "startup"
	StateShutdown     = "shutdown"
	StateError        = "error"
	StateDisconnected = "disconnected"
)

// Options configures a Client.
type Options struct {
	URL    string
	APIKey string
	// ClientVersion and ClientURL are reported in
	// server.connection.identify.
	ClientVersion string
	ClientURL     string
	DialTimeout   time.Duration
	Logger        *log.Logger
}

// Client is a Printer and Lister backed by Moonraker. Only the local
// origin (Moonraker's gcodes root) is supported.
type Client struct {
	opts Options
	log  *log.Logger

	mu    sync.Mutex
	conn  *Conn
	state string
}

var (
	_ printer.Printer = (*Client)(nil)
	_ printer.Lister  = (*Client)(nil)
)

// New creates a client. Nothing is dialed until Connect.
func New(opts Options) *Client {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger("moonraker")
	}
	return &Client{opts: opts, log: opts.Logger, state: StateDisconnected}
}

// State returns the last known Klippy state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	if prev != state {
		c.log.WithFields(log.Fields{"from": prev, "to": state}).Info("klippy state changed")
	}
}

func (c *Client) handleNotify(method string, params json.RawMessage) {
	switch method {
	case "notify_klippy_ready":
		c.setState(StateReady)
	case "notify_klippy_shutdown":
		c.setState(StateShutdown)
	case "notify_klippy_disconnected":
		c.setState(StateDisconnected)
	}
}

func (c *Client) current() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.Err() != nil {
		return nil
	}
	return c.conn
}

// Closed reports whether the websocket is down or Klippy is not ready.
func (c *Client) Closed(ctx context.Context) bool {
	return c.current() == nil || c.State() != StateReady
}

// Connect dials Moonraker if needed and refreshes the Klippy state. A
// Klippy in error or shutdown is asked to restart.
func (c *Client) Connect(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
		header := http.Header{}
		if c.opts.APIKey != "" {
			header.Set("X-Api-Key", c.opts.APIKey)
		}
		var err error
		conn, err = Dial(dctx, c.opts.URL, header, c.handleNotify)
		if err != nil {
			c.setState(StateDisconnected)
			return errors.PrinterUnreachableError("cannot reach "+c.opts.URL, err)
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		err = conn.Call(ctx, "server.connection.identify", map[string]any{
			"client_name": "filebuttons",
			"version":     c.opts.ClientVersion,
			"type":        "other",
			"url":         c.opts.ClientURL,
		}, nil)
		if err != nil {
			c.log.WithError(err).Debug("identify failed")
		}
	}

	var info struct {
		State        string `json:"state"`
		StateMessage string `json:"state_message"`
	}
	if err := conn.Call(ctx, "printer.info", nil, &info); err != nil {
		return errors.PrinterUnreachableError("printer.info failed", err)
	}
	c.setState(info.State)

	switch info.State {
	case StateReady:
		return nil
	case StateError, StateShutdown:
		if err := conn.Call(ctx, "printer.restart", nil, nil); err != nil {
			return errors.PrinterCommandError("printer.restart", err)
		}
		return errors.PrinterUnreachableError(
			fmt.Sprintf("klippy %s, restart requested: %s", info.State, strings.TrimSpace(info.StateMessage)), nil)
	}
	return errors.PrinterUnreachableError("klippy "+info.State, nil)
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn := c.current()
	if conn == nil {
		return errors.PrinterUnreachableError("not connected", nil)
	}
	if err := conn.Call(ctx, method, params, result); err != nil {
		return errors.PrinterCommandError(method, err)
	}
	return nil
}

type printStats struct {
	State    string `json:"state"`
	Filename string `json:"filename"`
}

func (c *Client) printStats(ctx context.Context) (printStats, error) {
	var res struct {
		Status struct {
			PrintStats printStats `json:"print_stats"`
		} `json:"status"`
	}
	err := c.call(ctx, "printer.objects.query", map[string]any{
		"objects": map[string]any{"print_stats": []string{"state", "filename"}},
	}, &res)
	return res.Status.PrintStats, err
}

// CurrentJob returns the file loaded into virtual_sdcard.
func (c *Client) CurrentJob(ctx context.Context) (*printer.Job, error) {
	ps, err := c.printStats(ctx)
	if err != nil {
		return nil, err
	}
	if ps.Filename == "" {
		return nil, nil
	}
	name := path.Base(ps.Filename)
	return &printer.Job{
		Path:    strings.TrimPrefix(ps.Filename, "/"),
		Name:    name,
		Display: name,
		Origin:  printer.OriginLocal,
	}, nil
}

// Printing reports a printing or paused job.
func (c *Client) Printing(ctx context.Context) (bool, error) {
	ps, err := c.printStats(ctx)
	if err != nil {
		return false, err
	}
	return ps.State == "printing" || ps.State == "paused", nil
}

func (c *Client) script(ctx context.Context, script string) error {
	return c.call(ctx, "printer.gcode.script", map[string]any{"script": script}, nil)
}

func (c *Client) DisplayMessage(ctx context.Context, msg string) error {
	// one line only
	msg = strings.NewReplacer("\n", " ", "\r", " ").Replace(msg)
	return c.script(ctx, "M117 "+msg)
}

// SelectFile loads path into virtual_sdcard without starting it.
func (c *Client) SelectFile(ctx context.Context, p string, origin printer.Origin) error {
	if origin != printer.OriginLocal {
		return errors.PrinterUnsupportedError(backend, "origin "+string(origin))
	}
	return c.script(ctx, "M23 /"+strings.TrimPrefix(p, "/"))
}

func (c *Client) StartPrint(ctx context.Context) error {
	job, err := c.CurrentJob(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.PrinterCommandError("printer.print.start", printer.ErrNoJob)
	}
	return c.call(ctx, "printer.print.start", map[string]any{"filename": job.Path}, nil)
}

func (c *Client) CancelPrint(ctx context.Context) error {
	return c.call(ctx, "printer.print.cancel", nil, nil)
}

func (c *Client) UnselectFile(ctx context.Context) error {
	return c.script(ctx, "SDCARD_RESET_FILE")
}

type dirItem struct {
	Dirname  string  `json:"dirname"`
	Modified float64 `json:"modified"`
	Size     int64   `json:"size"`
}

type fileItem struct {
	Filename string  `json:"filename"`
	Modified float64 `json:"modified"`
	Size     int64   `json:"size"`
}

// List returns the direct children of folder in the gcodes root.
func (c *Client) List(ctx context.Context, origin printer.Origin, folder string) ([]printer.Entry, error) {
	if origin != printer.OriginLocal {
		return nil, errors.PrinterUnsupportedError(backend, "origin "+string(origin))
	}
	folder = strings.Trim(folder, "/")
	var res struct {
		Dirs  []dirItem  `json:"dirs"`
		Files []fileItem `json:"files"`
	}
	err := c.call(ctx, "server.files.get_directory", map[string]any{
		"path":     path.Join("gcodes", folder),
		"extended": false,
	}, &res)
	if err != nil {
		return nil, err
	}

	entries := make([]printer.Entry, 0, len(res.Dirs)+len(res.Files))
	for _, d := range res.Dirs {
		if strings.HasPrefix(d.Dirname, ".") {
			continue
		}
		entries = append(entries, printer.Entry{
			Name:     d.Dirname,
			Path:     printer.Join(folder, d.Dirname),
			Origin:   origin,
			Type:     printer.TypeFolder,
			Modified: unixTime(d.Modified),
			Size:     d.Size,
		})
	}
	for _, f := range res.Files {
		if strings.HasPrefix(f.Filename, ".") {
			continue
		}
		entries = append(entries, printer.Entry{
			Name:     f.Filename,
			Path:     printer.Join(folder, f.Filename),
			Origin:   origin,
			Type:     printer.TypeFile,
			Modified: unixTime(f.Modified),
			Size:     f.Size,
		})
	}
	return entries, nil
}

func unixTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
