package moonraker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/printer"
)

// fakeMoonraker answers the JSON-RPC methods used by Client.
type fakeMoonraker struct {
	t      *testing.T
	apiKey string

	mu       sync.Mutex
	state    string
	filename string
	printing string
	scripts  []string
	calls    []string
	dirs     map[string]map[string]any
	conns    []*websocket.Conn
	restarts int
}

func newFake(t *testing.T, setup ...func(*fakeMoonraker)) (*fakeMoonraker, string) {
	f := &fakeMoonraker{t: t, state: StateReady, printing: "standby", dirs: map[string]map[string]any{}}
	for _, fn := range setup {
		fn(f)
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.apiKey != "" && r.Header.Get("X-Api-Key") != f.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		f.serve(conn)
	}))
	t.Cleanup(srv.Close)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
}

func (f *fakeMoonraker) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int64           `json:"id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		result, rpcErr := f.dispatchMethod(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]any{"code": 400, "message": rpcErr.Error()}
		} else {
			resp["result"] = result
		}
		// writes share f.mu with notify
		f.mu.Lock()
		conn.WriteJSON(resp)
		f.mu.Unlock()
	}
}

func (f *fakeMoonraker) dispatchMethod(method string, raw json.RawMessage) (any, error) {
	var params map[string]any
	_ = json.Unmarshal(raw, &params)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	switch method {
	case "server.connection.identify":
		return map[string]any{"connection_id": 1}, nil
	case "printer.info":
		return map[string]any{"state": f.state, "state_message": "Printer is " + f.state}, nil
	case "printer.restart":
		f.restarts++
		return "ok", nil
	case "printer.objects.query":
		return map[string]any{
			"eventtime": 1.0,
			"status": map[string]any{
				"print_stats": map[string]any{"state": f.printing, "filename": f.filename},
			},
		}, nil
	case "printer.gcode.script":
		script, _ := params["script"].(string)
		f.scripts = append(f.scripts, script)
		switch {
		case strings.HasPrefix(script, "M23 "):
			f.filename = strings.TrimPrefix(script, "M23 /")
		case script == "SDCARD_RESET_FILE":
			f.filename = ""
		}
		return "ok", nil
	case "printer.print.start":
		f.filename, _ = params["filename"].(string)
		f.printing = "printing"
		return "ok", nil
	case "printer.print.cancel":
		f.printing = "cancelled"
		return "ok", nil
	case "server.files.get_directory":
		p, _ := params["path"].(string)
		if d, ok := f.dirs[p]; ok {
			return d, nil
		}
		return nil, fmt.Errorf("directory %s not found", p)
	}
	return nil, fmt.Errorf("method not found: %s", method)
}

func (f *fakeMoonraker) notify(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": method})
	}
}

func (f *fakeMoonraker) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeMoonraker) snapshot() (scripts, calls []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...), append([]string(nil), f.calls...)
}

func connected(t *testing.T) (*fakeMoonraker, *Client) {
	t.Helper()
	f, url := newFake(t)
	c := New(Options{URL: url})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return f, c
}

func TestConnectAndClosed(t *testing.T) {
	f, url := newFake(t)
	c := New(Options{URL: url, ClientVersion: "1.2.3"})
	ctx := context.Background()

	assert.True(t, c.Closed(ctx))
	require.NoError(t, c.Connect(ctx))
	assert.False(t, c.Closed(ctx))
	assert.Equal(t, StateReady, c.State())

	_, calls := f.snapshot()
	assert.Equal(t, []string{"server.connection.identify", "printer.info"}, calls)
	require.NoError(t, c.Close())
	assert.True(t, c.Closed(ctx))
}

func TestConnectRestartsShutdownKlippy(t *testing.T) {
	f, url := newFake(t, func(f *fakeMoonraker) { f.state = StateShutdown })
	c := New(Options{URL: url})
	defer c.Close()

	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, errors.ErrPrinterUnreachable))
	f.mu.Lock()
	assert.Equal(t, 1, f.restarts)
	f.mu.Unlock()
	assert.True(t, c.Closed(context.Background()))
}

func TestConnectUnreachable(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/websocket", DialTimeout: time.Second})
	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, errors.ErrPrinterUnreachable))

	_, err = c.CurrentJob(context.Background())
	assert.True(t, errors.Is(err, errors.ErrPrinterUnreachable))
}

func TestAPIKey(t *testing.T) {
	_, url := newFake(t, func(f *fakeMoonraker) { f.apiKey = "secret" })

	err := New(Options{URL: url}).Connect(context.Background())
	assert.Error(t, err)

	c := New(Options{URL: url, APIKey: "secret"})
	require.NoError(t, c.Connect(context.Background()))
	c.Close()
}

func TestKlippyNotifications(t *testing.T) {
	f, c := connected(t)
	f.notify("notify_klippy_shutdown")
	assert.Eventually(t, func() bool { return c.State() == StateShutdown }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Closed(context.Background()))

	f.notify("notify_klippy_ready")
	assert.Eventually(t, func() bool { return !c.Closed(context.Background()) }, time.Second, 5*time.Millisecond)
}

func TestDroppedConnectionIsClosed(t *testing.T) {
	f, c := connected(t)
	f.dropConnections()
	assert.Eventually(t, func() bool { return c.Closed(context.Background()) }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Connect(context.Background()), "reconnect dials again")
	assert.False(t, c.Closed(context.Background()))
}

func TestJobLifecycle(t *testing.T) {
	f, c := connected(t)
	ctx := context.Background()

	job, err := c.CurrentJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, c.SelectFile(ctx, "models/b.gcode", printer.OriginLocal))
	job, err = c.CurrentJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, &printer.Job{Path: "models/b.gcode", Name: "b.gcode", Display: "b.gcode", Origin: printer.OriginLocal}, job)

	require.NoError(t, c.DisplayMessage(ctx, "3 b.gcode\nignored"))
	require.NoError(t, c.StartPrint(ctx))
	printing, err := c.Printing(ctx)
	require.NoError(t, err)
	assert.True(t, printing)

	require.NoError(t, c.CancelPrint(ctx))
	printing, _ = c.Printing(ctx)
	assert.False(t, printing)

	require.NoError(t, c.UnselectFile(ctx))
	job, _ = c.CurrentJob(ctx)
	assert.Nil(t, job)

	scripts, _ := f.snapshot()
	assert.Equal(t, []string{"M23 /models/b.gcode", "M117 3 b.gcode ignored", "SDCARD_RESET_FILE"}, scripts)
}

func TestStartWithoutJob(t *testing.T) {
	_, c := connected(t)
	err := c.StartPrint(context.Background())
	assert.ErrorIs(t, err, printer.ErrNoJob)
}

func TestSDCardUnsupported(t *testing.T) {
	_, c := connected(t)
	ctx := context.Background()
	err := c.SelectFile(ctx, "a.gcode", printer.OriginSDCard)
	assert.True(t, errors.Is(err, errors.ErrPrinterUnsupported))
	_, err = c.List(ctx, printer.OriginSDCard, "")
	assert.True(t, errors.Is(err, errors.ErrPrinterUnsupported))
}

func TestList(t *testing.T) {
	f, c := connected(t)
	f.mu.Lock()
	f.dirs["gcodes/models"] = map[string]any{
		"dirs": []map[string]any{
			{"dirname": "old", "modified": 1700000000.5, "size": 4096},
			{"dirname": ".thumbs", "modified": 1700000000.0, "size": 4096},
		},
		"files": []map[string]any{
			{"filename": "b.gcode", "modified": 1700000100.25, "size": 10},
			{"filename": "a.gcode", "modified": 1700000200.0, "size": 20},
		},
	}
	f.mu.Unlock()

	entries, err := c.List(context.Background(), printer.OriginLocal, "/models/")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	folders := printer.Folders(entries)
	require.Len(t, folders, 1)
	assert.Equal(t, "models/old", folders[0].Path)

	files := printer.Files(entries, []string{".gcode"})
	require.Len(t, files, 2)
	assert.Equal(t, "a.gcode", files[0].Name)
	assert.Equal(t, "models/a.gcode", files[0].Path)
	assert.Equal(t, time.Unix(1700000200, 0), files[0].Modified)
	assert.Equal(t, time.Unix(1700000100, 250000000), files[1].Modified)

	_, err = c.List(context.Background(), printer.OriginLocal, "missing")
	var rpcErr *RPCError
	assert.ErrorAs(t, err, &rpcErr)
}

func TestCallHonoursContext(t *testing.T) {
	_, c := connected(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CurrentJob(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
