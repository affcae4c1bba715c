package rpc

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ConnManager owns a single logical client connection. Concurrent Open
// calls share one attempt.
type ConnManager struct {
	// Dial opens the underlying connection.
	Dial func(ctx context.Context) (Conn, error)
	// OnOpen runs after the connection is established and before Open
	// returns, while frames are already being read. A failure closes the
	// connection.
	OnOpen func(ctx context.Context) error
	// OnFrame receives every inbound frame, on the read loop.
	OnFrame func(data []byte, binary bool)
	// OnClose is called once per connection when its read loop ends, with
	// the generation of that connection.
	OnClose func(gen uint64, err error)

	group singleflight.Group

	mu      sync.Mutex
	conn    Conn
	gen     uint64
	opening bool
}

// Generation identifies the current connection. It is incremented by
// every successful dial.
func (m *ConnManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// IsOpen is true when a connection is established and not being opened.
func (m *ConnManager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.opening && m.conn != nil
}

// Open establishes the connection unless it is already open. Callers that
// arrive while an attempt is in progress wait for it and share its error.
func (m *ConnManager) Open(ctx context.Context) error {
	ch := m.group.DoChan("open", func() (interface{}, error) {
		return nil, m.open(ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *ConnManager) open(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.opening = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.opening = false
		m.mu.Unlock()
	}()

	conn, err := m.Dial(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.conn = conn
	m.gen++
	gen := m.gen
	m.mu.Unlock()
	go m.readLoop(conn, gen)

	if m.OnOpen != nil {
		if err := m.OnOpen(ctx); err != nil {
			m.mu.Lock()
			if m.conn == conn {
				m.conn = nil
			}
			m.mu.Unlock()
			conn.Close()
			return err
		}
	}
	return nil
}

func (m *ConnManager) readLoop(conn Conn, gen uint64) {
	for {
		data, binary, err := conn.ReadFrame()
		if err != nil {
			m.mu.Lock()
			if m.conn == conn {
				m.conn = nil
			}
			m.mu.Unlock()
			conn.Close()
			if m.OnClose != nil {
				m.OnClose(gen, err)
			}
			return
		}
		if m.OnFrame != nil {
			m.OnFrame(data, binary)
		}
	}
}

// Send writes a frame on the open connection.
func (m *ConnManager) Send(data []byte, binary bool) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteFrame(data, binary)
}

// Close closes the connection, if open. Pending work is notified through
// OnClose.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
