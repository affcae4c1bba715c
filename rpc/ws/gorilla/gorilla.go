// Websocket implementation using Gorilla's Websocket library
package gorilla

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/smcp-go/smcp/rpc"
)

var _ rpc.Conn = &wsConn{}

type wsConn struct {
	muWrite sync.Mutex
	conn    *websocket.Conn
}

func (c *wsConn) ReadFrame() ([]byte, bool, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, false, err
		}
		switch kind {
		case websocket.TextMessage:
			return data, false, nil
		case websocket.BinaryMessage:
			return data, true, nil
		}
	}
}

func (c *wsConn) WriteFrame(data []byte, binary bool) error {
	kind := websocket.TextMessage
	if binary {
		kind = websocket.BinaryMessage
	}
	c.muWrite.Lock()
	defer c.muWrite.Unlock()
	return c.conn.WriteMessage(kind, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

var _ rpc.Dialer = Dialer{}

// Dialer opens client connections. The zero value uses
// websocket.DefaultDialer.
type Dialer struct {
	Dialer *websocket.Dialer
}

func (d Dialer) Dial(ctx context.Context, url string, header http.Header) (rpc.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

var _ rpc.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a WebSocket connection.
type Upgrader struct {
	Upgrader websocket.Upgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (rpc.Conn, error) {
	conn, err := u.Upgrader.Upgrade(w, r, h)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}
