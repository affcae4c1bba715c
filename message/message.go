/*
	Package message implements the smcp wire protocol.

	Every message carries a numeric ID and a Type. Control and RPC messages are
	exchanged as JSON text of the shape {"id":1,"type":1,"data":...}. Stream
	chunks are exchanged as compact binary frames: a 4-byte little-endian ID,
	one type byte, then the raw chunk bytes.

	The ID is the only correlation key between a call and every frame that
	belongs to it (response, callbacks, stream chunks).
*/
package message

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Type identifies the kind of a message on the wire.
type Type uint8

const (
	TypeJSONRequest Type = iota + 1
	TypeJSONResponseCallback
	TypeJSONResponse
	TypeStreamRequest
	TypeStreamResponseData
	TypeStreamResponseChunk
	TypeStreamResponseEnd
	TypeSessionRequest
	TypeSessionResponse
)

var typeLabels = map[Type]string{
	TypeJSONRequest:          "JsonRequest",
	TypeJSONResponseCallback: "JsonResponseCallback",
	TypeJSONResponse:         "JsonResponse",
	TypeStreamRequest:        "StreamRequest",
	TypeStreamResponseData:   "StreamResponseData",
	TypeStreamResponseChunk:  "StreamResponseChunk",
	TypeStreamResponseEnd:    "StreamResponseEnd",
	TypeSessionRequest:       "SessionRequest",
	TypeSessionResponse:      "SessionResponse",
}

// Valid returns true if t is one of the known message types.
func (t Type) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Binary returns true if messages of this type are sent as binary frames.
func (t Type) Binary() bool {
	return t == TypeStreamResponseChunk || t == TypeStreamResponseEnd
}

func (t Type) String() string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Request invokes the method at Path with the codec-encoded Args.
type Request struct {
	Path string          `json:"path"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Callback asks the caller to invoke the callback at Index that it passed
// as an argument of the call.
type Callback struct {
	Index int             `json:"index"`
	Args  json.RawMessage `json:"args"`
}

// StreamIndex asks the caller to upload the stream-valued argument at Index.
type StreamIndex struct {
	Index int `json:"index"`
}

// Message is a single protocol message. Which payload field is set depends
// on Type:
//
//	TypeJSONRequest          Request
//	TypeJSONResponseCallback Callback
//	TypeJSONResponse         Result (a codec-encoded [error, data] pair)
//	TypeStreamRequest        Stream
//	TypeStreamResponseData   Body
//	TypeStreamResponseChunk  Chunk
//	TypeStreamResponseEnd    (none)
//	TypeSessionRequest       Session (nil when the peer has no session yet)
//	TypeSessionResponse      Session
type Message struct {
	ID   uint32
	Type Type

	Request  *Request
	Callback *Callback
	Result   json.RawMessage
	Stream   *StreamIndex
	Session  *string
	Chunk    []byte

	// Body is the whole-body stream of a StreamResponseData message. It is
	// never serialized, it only exists on the HTTP request path.
	Body io.Reader
}

// NewRequest returns a JsonRequest message.
func NewRequest(id uint32, path string, args json.RawMessage) *Message {
	return &Message{ID: id, Type: TypeJSONRequest, Request: &Request{Path: path, Args: args}}
}

// NewResponse returns a JsonResponse message carrying an encoded
// [error, data] pair.
func NewResponse(id uint32, result json.RawMessage) *Message {
	return &Message{ID: id, Type: TypeJSONResponse, Result: result}
}

// NewCallback returns a JsonResponseCallback message.
func NewCallback(id uint32, index int, args json.RawMessage) *Message {
	return &Message{ID: id, Type: TypeJSONResponseCallback, Callback: &Callback{Index: index, Args: args}}
}

// NewStreamRequest returns a StreamRequest message.
func NewStreamRequest(id uint32, index int) *Message {
	return &Message{ID: id, Type: TypeStreamRequest, Stream: &StreamIndex{Index: index}}
}

// NewChunk returns a StreamResponseChunk message.
func NewChunk(id uint32, chunk []byte) *Message {
	return &Message{ID: id, Type: TypeStreamResponseChunk, Chunk: chunk}
}

// NewEnd returns a StreamResponseEnd message.
func NewEnd(id uint32) *Message {
	return &Message{ID: id, Type: TypeStreamResponseEnd}
}

// NewSessionRequest returns a SessionRequest message. An empty session is
// sent as null.
func NewSessionRequest(id uint32, session string) *Message {
	msg := &Message{ID: id, Type: TypeSessionRequest}
	if session != "" {
		msg.Session = &session
	}
	return msg
}

// NewSessionResponse returns a SessionResponse message.
func NewSessionResponse(id uint32, session string) *Message {
	msg := &Message{ID: id, Type: TypeSessionResponse}
	if session != "" {
		msg.Session = &session
	}
	return msg
}

// data returns the JSON value for the "data" field of a text message.
func (msg *Message) data() (interface{}, error) {
	switch msg.Type {
	case TypeJSONRequest:
		if msg.Request == nil {
			return nil, missingData(msg)
		}
		return msg.Request, nil
	case TypeJSONResponseCallback:
		if msg.Callback == nil {
			return nil, missingData(msg)
		}
		return msg.Callback, nil
	case TypeJSONResponse:
		if len(msg.Result) == 0 {
			return nil, missingData(msg)
		}
		return msg.Result, nil
	case TypeStreamRequest:
		if msg.Stream == nil {
			return nil, missingData(msg)
		}
		return msg.Stream, nil
	case TypeSessionRequest, TypeSessionResponse:
		if msg.Session == nil {
			return nil, nil
		}
		return *msg.Session, nil
	case TypeStreamResponseData:
		return nil, &ProtocolError{ID: msg.ID, Reason: "stream data messages cannot be serialized"}
	}
	return nil, &ProtocolError{ID: msg.ID, Reason: fmt.Sprintf("invalid message type: %d", msg.Type)}
}

func missingData(msg *Message) error {
	return &ProtocolError{ID: msg.ID, Reason: fmt.Sprintf("missing %s data", msg.Type)}
}

// String formats the message for trace logs. Chunk payloads are shown as
// their byte length.
func (msg *Message) String() string {
	var data string
	switch msg.Type {
	case TypeStreamResponseChunk:
		data = fmt.Sprintf(`{"byteLength":%d}`, len(msg.Chunk))
	case TypeStreamResponseEnd, TypeStreamResponseData:
		data = "null"
	default:
		v, err := msg.data()
		if err != nil {
			data = err.Error()
			break
		}
		out, err := json.Marshal(v)
		if err != nil {
			data = err.Error()
			break
		}
		data = string(out)
	}
	var s strings.Builder
	fmt.Fprintf(&s, "%4d %s %s", msg.ID, msg.Type, data)
	return s.String()
}
