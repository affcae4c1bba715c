package rpc

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
)

// TokenKey is the query parameter (WebSocket) or header/query key (HTTP)
// carrying the connection token.
const TokenKey = "x-smcp-token"

// MarkerKey is the header or query key that marks an HTTP request as an
// RPC call.
const MarkerKey = "x-smcp"

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, path string, params ...interface{}) error
}

var _ Service = &Client{}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Token is sent as the x-smcp-token query parameter.
	Token string
	// Session is the session id to resume on connect.
	Session  string
	Handlers []codec.Handler
	Header   http.Header
	Logging  bool
}

// NewClient returns a WebSocket client for endpoint. The connection is
// opened lazily by the first call.
func NewClient(endpoint string, dialer Dialer, opts ClientOptions) *Client {
	c := &Client{
		Endpoint: endpoint,
		Dialer:   dialer,
		opts:     opts,
		session:  opts.Session,
	}
	c.controller = NewClientController(c.send, opts.Handlers)
	c.controller.Logging = opts.Logging
	c.controller.BeforeRequest = func(ctx context.Context) error {
		if c.conn.IsOpen() {
			return nil
		}
		return c.conn.Open(ctx)
	}
	c.conn = &ConnManager{
		Dial:   c.dial,
		OnOpen: c.handshake,
		OnFrame: func(data []byte, binary bool) {
			msg, err := message.Parse(data, binary)
			if err != nil {
				logger.Printf("Client: dropping invalid message: %s", err)
				return
			}
			if err := c.controller.Process(msg); err != nil {
				logger.Printf("Client: failed to process message %d: %s", msg.ID, err)
			}
		},
		OnClose: func(gen uint64, err error) {
			// Calls made on a newer connection are not affected.
			c.controller.CancelGeneration(gen, TransportError{Cause: err})
		},
	}
	c.controller.Generation = c.conn.Generation
	return c
}

// Client calls a Server over a single WebSocket connection.
type Client struct {
	Endpoint string
	Dialer   Dialer

	opts       ClientOptions
	controller *ClientController
	conn       *ConnManager

	mu      sync.Mutex
	session string
}

// URL returns the endpoint with the connection token applied.
func (c *Client) URL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", err
	}
	if c.opts.Token != "" {
		q := u.Query()
		q.Set(TokenKey, c.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	u, err := c.URL()
	if err != nil {
		return nil, err
	}
	return c.Dialer.Dial(ctx, u, c.opts.Header)
}

// handshake resumes or obtains a session right after connecting.
func (c *Client) handshake(ctx context.Context) error {
	id, err := c.controller.SessionRequest(ctx, c.controller.NextID(), c.Session())
	if err != nil {
		return err
	}
	if id != "" {
		c.mu.Lock()
		c.session = id
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) send(msg *message.Message) error {
	data, binary, err := message.Serialize(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(data, binary)
}

// Session returns the session id issued by the server, if any.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Open connects now instead of on the first call.
func (c *Client) Open(ctx context.Context) error {
	return c.conn.Open(ctx)
}

// IsOpen reports whether the connection is established.
func (c *Client) IsOpen() bool {
	return c.conn.IsOpen()
}

// Call invokes the method at path and stores the result into result.
func (c *Client) Call(ctx context.Context, result interface{}, path string, params ...interface{}) error {
	return c.controller.Call(ctx, result, path, params...)
}

// Close closes the connection. Pending calls fail with a TransportError.
func (c *Client) Close() error {
	return c.conn.Close()
}
