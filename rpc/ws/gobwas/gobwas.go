// Websocket implementation using the gobwas/ws library
package gobwas

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/smcp-go/smcp/rpc"
)

// lockedWriter serializes writes, including the control frames written by
// the reader.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type rw struct {
	io.Reader
	io.Writer
}

var _ rpc.Conn = &wsConn{}

type wsConn struct {
	muWrite sync.Mutex
	conn    net.Conn
	rw      rw
	state   ws.State
}

func newConn(conn net.Conn, r io.Reader, state ws.State) *wsConn {
	c := &wsConn{conn: conn, state: state}
	if r == nil {
		r = conn
	}
	c.rw = rw{Reader: r, Writer: lockedWriter{mu: &c.muWrite, w: conn}}
	return c
}

func clientConn(conn net.Conn, r io.Reader) *wsConn {
	return newConn(conn, r, ws.StateClientSide)
}

func serverConn(conn net.Conn, r io.Reader) *wsConn {
	return newConn(conn, r, ws.StateServerSide)
}

func (c *wsConn) ReadFrame() ([]byte, bool, error) {
	var data []byte
	var op ws.OpCode
	var err error
	if c.state.ClientSide() {
		data, op, err = wsutil.ReadServerData(c.rw)
	} else {
		data, op, err = wsutil.ReadClientData(c.rw)
	}
	if err != nil {
		return nil, false, err
	}
	return data, op == ws.OpBinary, nil
}

func (c *wsConn) WriteFrame(data []byte, binary bool) error {
	op := ws.OpText
	if binary {
		op = ws.OpBinary
	}
	c.muWrite.Lock()
	defer c.muWrite.Unlock()
	if c.state.ClientSide() {
		return wsutil.WriteClientMessage(c.conn, op, data)
	}
	return wsutil.WriteServerMessage(c.conn, op, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

var _ rpc.Dialer = Dialer{}

// Dialer opens client connections.
type Dialer struct {
	Dialer ws.Dialer
}

func (d Dialer) Dial(ctx context.Context, url string, header http.Header) (rpc.Conn, error) {
	dialer := d.Dialer
	if header != nil {
		dialer.Header = ws.HandshakeHeaderHTTP(header)
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	var r io.Reader
	if br != nil {
		// Frames sent right after the handshake are buffered in br.
		r = br
	}
	return clientConn(conn, r), nil
}

var _ rpc.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a WebSocket connection.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (rpc.Conn, error) {
	upgrader := u.Upgrader
	if len(h) > 0 {
		upgrader.Header = h
	}
	conn, brw, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if brw != nil && brw.Reader.Buffered() > 0 {
		reader = brw.Reader
	}
	return serverConn(conn, reader), nil
}
