package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
)

// Resolver instantiates a constructor entry for a call, for example from a
// dependency container or the caller's session. Without a resolver,
// entry.New() is used.
type Resolver func(ctx context.Context, entry *Entry) (interface{}, error)

// Exchange is one inbound message and the hooks to answer it.
type Exchange struct {
	// Peer identifies the connection the message arrived on. It is nil for
	// one-shot HTTP requests, which can't carry streams.
	Peer    interface{}
	Message *message.Message
	Send    func(*message.Message) error
	// OnSession answers a session handshake with the issued session id.
	OnSession func(requested *string) (string, error)
	Resolve   Resolver
}

// NewServerController returns a ServerController for api. handlers are the
// caller's codec handlers; the built-in handlers are appended.
func NewServerController(api API, handlers []codec.Handler) *ServerController {
	return &ServerController{
		API:      api,
		Handlers: codec.Combine(handlers),
		streams:  map[interface{}]map[uint32]*sink{},
	}
}

// ServerController dispatches inbound calls to the API and tracks the
// inbound streams of every connected peer.
type ServerController struct {
	API      API
	Handlers []codec.Handler

	logging int32
	methods methodCache

	mu      sync.Mutex
	streams map[interface{}]map[uint32]*sink
}

// SetLogging turns message tracing on or off. It is safe to call while
// serving.
func (c *ServerController) SetLogging(enabled bool) {
	var v int32
	if enabled {
		v = 1
	}
	atomic.StoreInt32(&c.logging, v)
}

func (c *ServerController) tracing() bool {
	return atomic.LoadInt32(&c.logging) == 1
}

// CallAPI resolves path, calls the method with args and returns the encoded
// [error, data] tuple. Errors and panics raised by the method are delivered
// in the tuple.
func (c *ServerController) CallAPI(ctx context.Context, path string, args []interface{}, resolve Resolver) json.RawMessage {
	data, err := c.call(ctx, path, args, resolve)
	var tuple []interface{}
	if err != nil {
		tuple = []interface{}{err, nil}
	} else {
		tuple = []interface{}{nil, data}
	}
	raw, err := encodeObject(tuple, c.Handlers)
	if err != nil {
		// The result can't be encoded, report that instead.
		logger.Printf("Failed to encode result of %s: %s", path, err)
		raw, err = encodeObject([]interface{}{err, nil}, c.Handlers)
		if err != nil {
			raw, _ = json.Marshal([]interface{}{err.Error(), nil})
		}
	}
	return raw
}

func encodeObject(v interface{}, handlers []codec.Handler) (json.RawMessage, error) {
	payload, err := codec.Encode(v, handlers)
	if err != nil {
		return nil, err
	}
	return payload.MarshalObject()
}

func (c *ServerController) call(ctx context.Context, path string, args []interface{}, resolve Resolver) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, PanicError{Method: path, Value: r}
		}
	}()

	entry, name, err := c.API.lookup(ctx, path)
	if err != nil {
		return nil, err
	}
	var instance interface{}
	if resolve != nil {
		instance, err = resolve(ctx, entry)
		if err != nil {
			return nil, err
		}
	} else {
		instance = entry.New()
	}
	if instance == nil {
		return nil, NotFoundError{Path: path, Reason: "instance is empty"}
	}
	method, ok := c.methods.find(instance, name)
	if !ok {
		return nil, NotFoundError{Path: path, Reason: "method not found"}
	}
	return method.Call(ctx, args)
}

// Dispatch processes ex like Process, but runs JsonRequests in their own
// goroutine so the caller's read loop keeps feeding stream frames of calls
// in flight.
func (c *ServerController) Dispatch(ctx context.Context, ex Exchange) error {
	if ex.Message.Type == message.TypeJSONRequest {
		c.openPeer(ex.Peer)
		go func() {
			if err := c.process(ctx, ex, false); err != nil {
				logger.Printf("Failed to process request %d: %s", ex.Message.ID, err)
			}
		}()
		return nil
	}
	return c.Process(ctx, ex)
}

// Process handles one inbound message. The first JsonRequest of a peer
// creates its stream table.
func (c *ServerController) Process(ctx context.Context, ex Exchange) error {
	return c.process(ctx, ex, true)
}

func (c *ServerController) process(ctx context.Context, ex Exchange, openPeer bool) error {
	msg := ex.Message
	if c.tracing() {
		trace(sideServer, false, msg)
	}
	send := func(m *message.Message) error {
		if c.tracing() {
			trace(sideServer, true, m)
		}
		return ex.Send(m)
	}

	switch msg.Type {
	case message.TypeSessionRequest:
		if ex.OnSession == nil {
			return fmt.Errorf("session request not implemented")
		}
		id, err := ex.OnSession(msg.Session)
		if sendErr := send(message.NewSessionResponse(msg.ID, id)); sendErr != nil {
			return sendErr
		}
		return err
	case message.TypeJSONRequest:
		if openPeer {
			c.openPeer(ex.Peer)
		}
		args, err := c.decodeArgs(msg, ex.Peer, send)
		var result json.RawMessage
		if err != nil {
			result, _ = encodeObject([]interface{}{err, nil}, c.Handlers)
		} else {
			result = c.CallAPI(ctx, msg.Request.Path, args, ex.Resolve)
		}
		return send(message.NewResponse(msg.ID, result))
	case message.TypeStreamResponseChunk:
		s, err := c.sink(ex.Peer, msg.ID, false)
		if err != nil {
			return err
		}
		s.write(msg.Chunk)
		return nil
	case message.TypeStreamResponseEnd:
		s, err := c.sink(ex.Peer, msg.ID, true)
		if err != nil {
			return err
		}
		s.finish(nil)
		return nil
	case message.TypeStreamResponseData:
		s, err := c.sink(ex.Peer, msg.ID, true)
		if err != nil {
			return err
		}
		buf := make([]byte, chunkSize)
		for {
			n, err := msg.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.write(chunk)
			}
			if err == io.EOF {
				s.finish(nil)
				return nil
			}
			if err != nil {
				s.finish(fmt.Errorf("aborted: %w", err))
				return err
			}
		}
	}
	return fmt.Errorf("invalid message type: %s", msg.Type)
}

func (c *ServerController) decodeArgs(msg *message.Message, peer interface{}, send func(*message.Message) error) ([]interface{}, error) {
	hooks := codec.Hooks{
		OnCallback: func(index int, args []interface{}) error {
			raw, err := json.Marshal(args)
			if err != nil {
				return err
			}
			return send(message.NewCallback(msg.ID, index, raw))
		},
		OnStream: func(index int) (io.ReadCloser, error) {
			if peer == nil {
				return nil, ErrStreamsUnsupported
			}
			s, err := c.openSink(peer, msg.ID)
			if err != nil {
				return nil, err
			}
			if err := send(message.NewStreamRequest(msg.ID, index)); err != nil {
				c.removeSink(peer, msg.ID)
				return nil, err
			}
			return s, nil
		},
	}
	decoded, err := codec.Decode(msg.Request.Args, nil, c.Handlers, hooks)
	if err != nil {
		return nil, err
	}
	args, ok := decoded.([]interface{})
	if !ok {
		return nil, fmt.Errorf("arguments are not an array")
	}
	return args, nil
}

// openPeer creates the stream table of a peer.
func (c *ServerController) openPeer(peer interface{}) {
	if peer == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streams[peer]; !ok {
		c.streams[peer] = map[uint32]*sink{}
	}
}

func (c *ServerController) openSink(peer interface{}, id uint32) (*sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.streams[peer]
	if !ok {
		return nil, ErrStreamAborted
	}
	if _, ok := table[id]; ok {
		return nil, fmt.Errorf("stream already open for message: %d", id)
	}
	s := newSink()
	table[id] = s
	return s, nil
}

func (c *ServerController) removeSink(peer interface{}, id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if table, ok := c.streams[peer]; ok {
		delete(table, id)
	}
}

// sink returns the open sink for (peer, id), removing it when remove is set.
func (c *ServerController) sink(peer interface{}, id uint32, remove bool) (*sink, error) {
	if peer == nil {
		return nil, ErrStreamsUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.streams[peer]
	if !ok {
		return nil, StreamNotFoundError{ID: id}
	}
	s, ok := table[id]
	if !ok {
		return nil, StreamNotFoundError{ID: id}
	}
	if remove {
		delete(table, id)
	}
	return s, nil
}

// CloseStreams aborts every open stream of a peer and drops its table.
func (c *ServerController) CloseStreams(peer interface{}) {
	c.mu.Lock()
	table := c.streams[peer]
	delete(c.streams, peer)
	c.mu.Unlock()

	for _, s := range table {
		s.finish(ErrStreamAborted)
	}
}
