package rpc

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// Conn is a message-oriented connection. Text frames carry JSON messages,
// binary frames carry stream chunks. WriteFrame must be safe for concurrent
// use; ReadFrame is only called from one goroutine.
type Conn interface {
	ReadFrame() (data []byte, binary bool, err error)
	WriteFrame(data []byte, binary bool) error
	Close() error
}

// Dialer opens client-side connections. This allows switching between
// different websocket implementations.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Upgrader takes an HTTP request, upgrades it to a websocket server and
// returns a Conn.
type Upgrader interface {
	Upgrade(*http.Request, http.ResponseWriter, http.Header) (Conn, error)
}

type frame struct {
	data   []byte
	binary bool
}

// Pipe returns both ends of an in-memory connection. Useful for testing.
func Pipe() (Conn, Conn) {
	a := make(chan frame, 16)
	b := make(chan frame, 16)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: a, out: b, done: done, once: once},
		&pipeConn{in: b, out: a, done: done, once: once}
}

type pipeConn struct {
	in   <-chan frame
	out  chan<- frame
	done chan struct{}
	once *sync.Once
}

func (p *pipeConn) ReadFrame() ([]byte, bool, error) {
	select {
	case f := <-p.in:
		return f.data, f.binary, nil
	case <-p.done:
		return nil, false, io.EOF
	}
}

func (p *pipeConn) WriteFrame(data []byte, binary bool) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- frame{buf, binary}:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// PipeDialer dials by serving one end of a Pipe with Serve. Useful for
// testing clients without a network.
type PipeDialer struct {
	Serve func(Conn)
}

func (d PipeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	c1, c2 := Pipe()
	go d.Serve(c2)
	return c1, nil
}
