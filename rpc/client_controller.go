package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
)

// chunkSize is the size of stream chunks sent to the peer.
const chunkSize = 64 * 1024

type pendingCall struct {
	path string
	args *codec.Payload
	gen  uint64
	done chan settled
}

type pendingSession struct {
	gen  uint64
	done chan settled
}

type settled struct {
	msg *message.Message
	err error
}

// NewClientController returns a ClientController that hands outbound
// messages to send. handlers are the caller's codec handlers; the built-in
// handlers are appended.
func NewClientController(send func(*message.Message) error, handlers []codec.Handler) *ClientController {
	return &ClientController{
		Handlers: codec.Combine(handlers),
		Send:     send,
		calls:    map[uint32]*pendingCall{},
		sessions: map[uint32]*pendingSession{},
	}
}

// ClientController issues calls and correlates inbound messages to them by
// id. It talks to exactly one peer.
type ClientController struct {
	Handlers []codec.Handler
	Logging  bool
	// Send hands a message to the transport.
	Send func(*message.Message) error
	// BeforeRequest runs before every call, typically to open the
	// connection.
	BeforeRequest func(ctx context.Context) error
	// Generation returns the generation of the connection calls are sent
	// on (optional). See CancelGeneration.
	Generation func() uint64

	id uint32

	mu       sync.Mutex
	calls    map[uint32]*pendingCall
	sessions map[uint32]*pendingSession
}

// NextID returns a new message id. Ids start at 1 and are never reused.
func (c *ClientController) NextID() uint32 {
	return atomic.AddUint32(&c.id, 1)
}

func (c *ClientController) generation() uint64 {
	if c.Generation == nil {
		return 0
	}
	return c.Generation()
}

func (c *ClientController) send(msg *message.Message) error {
	if c.Logging {
		trace(sideClient, true, msg)
	}
	return c.Send(msg)
}

// Call invokes the method at path and stores the result into result, which
// must be a pointer or nil.
func (c *ClientController) Call(ctx context.Context, result interface{}, path string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	data, err := c.Request(ctx, c.NextID(), path, params)
	if err != nil {
		return err
	}
	return assignResult(result, data)
}

func assignResult(result interface{}, data interface{}) error {
	if result == nil {
		return nil
	}
	v := reflect.ValueOf(result)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("result must be a non-nil pointer, got %T", result)
	}
	return codec.Assign(v.Elem(), data)
}

// Request sends a JsonRequest with the given id and waits for its response.
// The returned value is the decoded data of the response; a non-null error
// in the response is returned as the error.
func (c *ClientController) Request(ctx context.Context, id uint32, path string, args []interface{}) (interface{}, error) {
	if c.BeforeRequest != nil {
		if err := c.BeforeRequest(ctx); err != nil {
			return nil, err
		}
	}
	payload, err := codec.Encode(args, c.Handlers)
	if err != nil {
		return nil, err
	}
	raw, err := payload.MarshalObject()
	if err != nil {
		return nil, err
	}

	call := &pendingCall{
		path: path,
		args: payload,
		gen:  c.generation(),
		done: make(chan settled, 1),
	}
	c.mu.Lock()
	c.calls[id] = call
	c.mu.Unlock()
	defer c.removeCall(id)

	if err := c.send(message.NewRequest(id, path, raw)); err != nil {
		return nil, err
	}

	select {
	case res := <-call.done:
		if res.err != nil {
			return nil, res.err
		}
		return decodeResponse(res.msg.Result, c.Handlers)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// decodeResponse decodes an [error, data] tuple.
func decodeResponse(raw json.RawMessage, handlers []codec.Handler) (interface{}, error) {
	decoded, err := codec.Decode(raw, nil, handlers, codec.Hooks{})
	if err != nil {
		return nil, err
	}
	tuple, ok := decoded.([]interface{})
	if !ok || len(tuple) != 2 {
		return nil, fmt.Errorf("response is not an [error, data] pair: %s", raw)
	}
	if tuple[0] != nil {
		if err, ok := tuple[0].(error); ok {
			return nil, err
		}
		return nil, &codec.RemoteError{Message: fmt.Sprint(tuple[0])}
	}
	return tuple[1], nil
}

func (c *ClientController) removeCall(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, id)
}

// SessionRequest performs the session handshake and returns the session id
// issued by the peer, which is empty when the peer has no session store.
func (c *ClientController) SessionRequest(ctx context.Context, id uint32, session string) (string, error) {
	pending := &pendingSession{gen: c.generation(), done: make(chan settled, 1)}
	c.mu.Lock()
	c.sessions[id] = pending
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.sessions, id)
		c.mu.Unlock()
	}()

	if err := c.send(message.NewSessionRequest(id, session)); err != nil {
		return "", err
	}
	select {
	case res := <-pending.done:
		if res.err != nil {
			return "", res.err
		}
		if res.msg.Session == nil {
			return "", nil
		}
		return *res.msg.Session, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Process handles a message from the peer. Messages for unknown ids are
// ignored.
func (c *ClientController) Process(msg *message.Message) error {
	if c.Logging {
		trace(sideClient, false, msg)
	}

	switch msg.Type {
	case message.TypeJSONResponse:
		c.mu.Lock()
		call, ok := c.calls[msg.ID]
		delete(c.calls, msg.ID)
		c.mu.Unlock()
		if ok {
			call.done <- settled{msg: msg}
		}
		return nil
	case message.TypeJSONResponseCallback:
		c.mu.Lock()
		call, ok := c.calls[msg.ID]
		c.mu.Unlock()
		if !ok {
			return nil
		}
		if msg.Callback.Index < 0 || msg.Callback.Index >= len(call.args.Callbacks) {
			return fmt.Errorf("invalid callback index %d for message %d", msg.Callback.Index, msg.ID)
		}
		var args []interface{}
		if err := json.Unmarshal(msg.Callback.Args, &args); err != nil {
			return err
		}
		return invokeCallback(call, msg.Callback.Index, args)
	case message.TypeStreamRequest:
		c.mu.Lock()
		call, ok := c.calls[msg.ID]
		c.mu.Unlock()
		if !ok {
			return nil
		}
		if msg.Stream.Index < 0 || msg.Stream.Index >= len(call.args.Streams) {
			return fmt.Errorf("invalid stream index %d for message %d", msg.Stream.Index, msg.ID)
		}
		go c.pump(msg.ID, call.args.Streams[msg.Stream.Index])
		return nil
	case message.TypeSessionResponse:
		c.mu.Lock()
		pending, ok := c.sessions[msg.ID]
		delete(c.sessions, msg.ID)
		c.mu.Unlock()
		if ok {
			pending.done <- settled{msg: msg}
		}
		return nil
	}
	return fmt.Errorf("invalid message type: %s", msg.Type)
}

// invokeCallback runs a caller's callback. A panic is returned as an error
// so it can't take down the read loop.
func invokeCallback(call *pendingCall, index int, args []interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Method: fmt.Sprintf("%s callback %d", call.path, index), Value: r}
		}
	}()
	return codec.Invoke(call.args.Callbacks[index], args)
}

// pump uploads a stream as chunks followed by an end marker.
func (c *ClientController) pump(id uint32, stream codec.Stream) {
	defer func() {
		if err := c.send(message.NewEnd(id)); err != nil {
			logger.Printf("Failed to end stream %d: %s", id, err)
		}
	}()

	r, err := stream()
	if err != nil {
		logger.Printf("Failed to open stream %d: %s", id, err)
		return
	}
	defer r.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := c.send(message.NewChunk(id, chunk)); err != nil {
				logger.Printf("Failed to send stream chunk %d: %s", id, err)
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Printf("Failed to read stream %d: %s", id, err)
			return
		}
	}
}

// Cancel rejects every pending call and handshake with err.
func (c *ClientController) Cancel(err error) {
	c.mu.Lock()
	calls, sessions := c.calls, c.sessions
	c.calls = map[uint32]*pendingCall{}
	c.sessions = map[uint32]*pendingSession{}
	c.mu.Unlock()

	for _, call := range calls {
		call.done <- settled{err: err}
	}
	for _, s := range sessions {
		s.done <- settled{err: err}
	}
}

// CancelGeneration rejects the pending calls and handshakes made on
// connections up to generation gen with err. Calls made on a newer
// connection are kept.
func (c *ClientController) CancelGeneration(gen uint64, err error) {
	var calls []*pendingCall
	var sessions []*pendingSession
	c.mu.Lock()
	for id, call := range c.calls {
		if call.gen <= gen {
			calls = append(calls, call)
			delete(c.calls, id)
		}
	}
	for id, s := range c.sessions {
		if s.gen <= gen {
			sessions = append(sessions, s)
			delete(c.sessions, id)
		}
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.done <- settled{err: err}
	}
	for _, s := range sessions {
		s.done <- settled{err: err}
	}
}

// Pending returns the number of calls awaiting a response.
func (c *ClientController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
