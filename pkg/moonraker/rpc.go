// Package moonraker drives a Klipper printer through Moonraker's
// websocket JSON-RPC API. Client implements both printer.Printer and
// printer.Lister.
package moonraker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"filebuttons/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 20 // directory listings can be large
)

// ErrClosed is returned by calls on a closed connection.
var ErrClosed = stderrors.New("moonraker: connection closed")

// JSON-RPC 2.0 structures

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// rpcMessage is either a response (ID set) or a notification (Method
// set).
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// RPCError is an error returned by Moonraker for a call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("moonraker error %d: %s", e.Code, e.Message)
}

// NotifyFunc receives server notifications such as
// notify_klippy_ready. It runs on the read goroutine.
type NotifyFunc func(method string, params json.RawMessage)

// Conn is one websocket connection carrying JSON-RPC calls.
type Conn struct {
	ws       *websocket.Conn
	onNotify NotifyFunc
	log      *log.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan rpcMessage
	err     error

	nextID atomic.Int64
	done   chan struct{}
}

// Dial connects to url (ws://host:7125/websocket). header may carry the
// X-Api-Key.
func Dial(ctx context.Context, url string, header http.Header, onNotify NotifyFunc) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:       ws,
		onNotify: onNotify,
		log:      log.GetLogger("moonraker"),
		pending:  make(map[int64]chan rpcMessage),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.pingPump()
	return c, nil
}

// Call invokes method and decodes the result into result, which may be
// nil.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := c.nextID.Add(1)
	ch := make(chan rpcMessage, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteJSON(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		return json.Unmarshal(msg.Result, result)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

// Done is closed when the connection is lost or closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and ends the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	c.err = err
	close(c.done)
	c.ws.Close()
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			c.shutdown(err)
			return
		}
		// any traffic proves the peer alive
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Debug("ignoring malformed message")
			continue
		}
		if msg.ID != nil {
			c.mu.Lock()
			ch := c.pending[*msg.ID]
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
			continue
		}
		if msg.Method != "" && c.onNotify != nil {
			c.onNotify(msg.Method, msg.Params)
		}
	}
}

func (c *Conn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
