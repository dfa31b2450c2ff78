// Package transport is the client side of the relay connection: one websocket
// shared by every chat surface, carrying {event, data} frames.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/logging"
)

var (
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("transport: connection closed")
	// ErrConnectionLost is returned by Emit while a reconnect is in progress.
	ErrConnectionLost = errors.New("transport: connection lost")
)

// Frame is the unit exchanged with the relay
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Options configure Dial
type Options struct {
	// Token is sent as a bearer header and as the token query parameter.
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxBackoff caps the wait between reconnect attempts.
	MaxBackoff time.Duration
	Logger     *zap.SugaredLogger
}

// Conn is a reconnecting websocket connection to the relay
type Conn struct {
	url    string
	header http.Header
	opts   Options
	dialer websocket.Dialer
	log    *zap.SugaredLogger

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool

	writeMu sync.Mutex

	hmu      sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]func(json.RawMessage)
	hooks    map[uint64]func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the relay at wsURL. The first connection attempt is made
// synchronously; later drops are repaired in the background.
func Dial(ctx context.Context, wsURL string, opts Options) (*Conn, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	log := logging.Or(opts.Logger, "transport")

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
		if u, err := neturl.Parse(wsURL); err == nil {
			q := u.Query()
			q.Set("token", opts.Token)
			u.RawQuery = q.Encode()
			wsURL = u.String()
		}
	}

	c := &Conn{
		url:      wsURL,
		header:   header,
		opts:     opts,
		dialer:   websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		log:      log,
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
		hooks:    make(map[uint64]func()),
		done:     make(chan struct{}),
	}

	ws, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run(ws)
	return c, nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, errors.Wrapf(err, "dial relay: %s %s", resp.Status, body)
		}
		return nil, errors.Wrap(err, "dial relay")
	}
	return ws, nil
}

// run reads until the socket drops, then reconnects with exponential backoff
// and fires the reconnect hooks
func (c *Conn) run(ws *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.read(ws)
		if c.isClosed() {
			return
		}
		c.log.Warnw("relay connection lost", "error", err)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		ws, err = c.reconnect()
		if err != nil {
			// only cancellation ends the retry loop
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		c.log.Infow("relay connection restored")
		c.fireReconnect()
	}
}

func (c *Conn) reconnect() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	var ws *websocket.Conn
	op := func() error {
		var err error
		ws, err = c.dial(c.ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debugw("reconnect failed", "error", err, "retryIn", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) read(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debugw("dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f Frame) {
	c.hmu.RLock()
	hs := make([]func(json.RawMessage), 0, len(c.handlers[f.Event]))
	for _, h := range c.handlers[f.Event] {
		hs = append(hs, h)
	}
	c.hmu.RUnlock()

	for _, h := range hs {
		h(f.Data)
	}
}

func (c *Conn) fireReconnect() {
	c.hmu.RLock()
	hooks := make([]func(), 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.hmu.RUnlock()

	for _, h := range hooks {
		h()
	}
}

// Emit sends one frame to the relay
func (c *Conn) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	closed, ws := c.closed, c.ws
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ws == nil {
		return ErrConnectionLost
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}
	b, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrapf(err, "write %s", event)
	}
	return nil
}

// On registers handler for event. Handlers run on the reader goroutine.
func (c *Conn) On(event string, handler func(data json.RawMessage)) (off func()) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]func(json.RawMessage))
	}
	c.handlers[event][id] = handler
	return func() {
		c.hmu.Lock()
		delete(c.handlers[event], id)
		c.hmu.Unlock()
	}
}

// OnReconnect registers hook to run after every restored connection
func (c *Conn) OnReconnect(hook func()) (off func()) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	id := c.nextID
	c.hooks[id] = hook
	return func() {
		c.hmu.Lock()
		delete(c.hooks, id)
		c.hmu.Unlock()
	}
}

// Connected reports whether a socket is currently up
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.ws != nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the connection down and stops reconnecting
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.cancel()
	var err error
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = ws.Close()
	}
	<-c.done
	return err
}
