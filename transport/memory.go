package transport

import (
	"context"
	"sync"
)

// Memory is an in-process Transport. Each Connect returns a MemoryConn
// whose server side is driven by the caller: Push delivers inbound
// events, Drop ends the session from the remote side, and Emitted
// returns what the client sent. Used in tests and local tooling.
type Memory struct {
	mu          sync.Mutex
	connectErr  error
	conns       []*MemoryConn
	credentials []string
}

// NewMemory creates an in-process transport.
func NewMemory() *Memory {
	return &Memory{}
}

// FailConnect makes subsequent Connect calls fail with err. Pass nil to
// restore normal behavior.
func (m *Memory) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

func (m *Memory) Connect(ctx context.Context, credential string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials = append(m.credentials, credential)
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	c := &MemoryConn{events: make(chan Event, eventBuffer)}
	c.events <- Connected{}
	m.conns = append(m.conns, c)
	return c, nil
}

// Conns returns every connection opened so far, oldest first.
func (m *Memory) Conns() []*MemoryConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MemoryConn(nil), m.conns...)
}

// Last returns the most recent connection, or nil.
func (m *Memory) Last() *MemoryConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// Credentials returns the credentials passed to Connect, in call order.
func (m *Memory) Credentials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.credentials...)
}

// MemoryConn is the Conn returned by Memory.
type MemoryConn struct {
	mu      sync.Mutex
	events  chan Event
	emitted []Command
	emitErr error
	closed  bool
}

func (c *MemoryConn) Events() <-chan Event {
	return c.events
}

func (c *MemoryConn) Emit(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, cmd)
	return nil
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// Push delivers an inbound event. It reports false if the connection is
// already closed.
func (c *MemoryConn) Push(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events <- ev
	return true
}

// Drop ends the session from the remote side.
func (c *MemoryConn) Drop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- Disconnected{Reason: reason}
	c.closed = true
	close(c.events)
}

// FailEmit makes subsequent Emit calls fail with err.
func (c *MemoryConn) FailEmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

// Emitted returns the commands sent so far.
func (c *MemoryConn) Emitted() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.emitted...)
}

// Closed reports whether the connection has been closed by either side.
func (c *MemoryConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
