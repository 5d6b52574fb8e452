package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	servicegeek "github.com/service-geek/client"
	"nhooyr.io/websocket"
)

const (
	eventBuffer  = 64
	maxFrameSize = 1 << 20
)

// WebSocket is a Transport backed by a websocket connection to the chat
// gateway.
type WebSocket struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// WebSocketConfig configures NewWebSocket.
type WebSocketConfig struct {
	// BaseURL is the API base URL; the gateway address is derived from it.
	BaseURL string
	// HTTPClient is used for the handshake. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewWebSocket creates a websocket transport for the gateway under cfg.BaseURL.
func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	u, err := servicegeek.LiveURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{url: u, httpClient: cfg.HTTPClient, logger: logger}, nil
}

// URL returns the gateway address.
func (w *WebSocket) URL() string {
	return w.url
}

// Connect dials the gateway. The credential is sent as a bearer token in
// the handshake.
func (w *WebSocket) Connect(ctx context.Context, credential string) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{
		HTTPClient: w.httpClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + credential}},
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", w.url, err)
	}
	ws.SetReadLimit(maxFrameSize)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		ws:     ws,
		events: make(chan Event, eventBuffer),
		ctx:    readCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: w.logger,
	}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	closing   atomic.Bool
	ended     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Emit returns ErrClosed once the connection has ended from either side.
func (c *wsConn) Emit(ctx context.Context, cmd Command) error {
	if c.isClosed() {
		return ErrClosed
	}
	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("transport: emit %s: %w", cmd.Name(), err)
	}
	return nil
}

func (c *wsConn) isClosed() bool {
	if c.closing.Load() || c.ended.Load() || c.ctx.Err() != nil {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err := c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
		c.cancel()
		<-c.done
		if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// readLoop turns frames into events until the connection ends. The
// goroutine exits when the socket is closed from either side.
func (c *wsConn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	if !c.deliver(Connected{}) {
		return
	}
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.ended.Store(true)
			if c.closing.Load() || c.ctx.Err() != nil {
				return
			}
			reason := err.Error()
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				reason = ce.Reason
				if reason == "" {
					reason = ce.Code.String()
				}
			}
			c.deliver(Disconnected{Reason: reason})
			return
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			c.logger.Debug("skipping chat frame", "error", err)
			continue
		}
		if !c.deliver(ev) {
			return
		}
	}
}

func (c *wsConn) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}
