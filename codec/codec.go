/*
	Package codec turns call arguments and results into a wire-safe tree while
	keeping embedded functions and binary streams alive as references.

	Plain data (nil, booleans, numbers, strings, byte slices, maps, slices,
	arrays and structs) passes through. Functions are replaced by callback
	placeholders ({"$callback": index}) and collected in Payload.Callbacks.
	Values matched by a Handler are replaced by tagged references
	({"$object": [handlerIndex, encoded, streamOrBufferIndex?]}); their
	streams and buffers are collected out of band.

	The index of a handler in the list is its wire type tag, so both peers
	must load the same handler list. Combine prepends caller handlers to the
	defaults.
*/
package codec

import (
	"encoding/json"
	"io"
)

const (
	objectKey   = "$object"
	callbackKey = "$callback"
)

// Stream opens a byte stream. It is called at most once per transfer.
type Stream func() (io.ReadCloser, error)

// Handler encodes and decodes instances that can't pass through as plain
// data.
type Handler interface {
	// Test reports whether the handler is responsible for v.
	Test(v interface{}) bool
	// Encode returns the JSON-encodable representation of v.
	Encode(v interface{}) (interface{}, error)
	// Decode rebuilds a value from its encoded representation.
	Decode(encoded json.RawMessage, extra Extra) (interface{}, error)
}

// BufferEncoder is implemented by handlers that carry v as an out-of-band
// buffer.
type BufferEncoder interface {
	EncodeBuffer(v interface{}) ([]byte, error)
}

// StreamSourcer is implemented by handlers that carry v as an out-of-band
// byte stream. It takes precedence over BufferEncoder.
type StreamSourcer interface {
	StreamSource(v interface{}) (Stream, error)
}

// Extra holds the out-of-band data referenced by a tagged reference.
type Extra struct {
	// Buffer is the referenced buffer, if any.
	Buffer []byte
	// OpenStream requests the referenced stream from the peer. It is nil
	// when the reference has no stream or buffer index.
	OpenStream Stream
}

// Payload is the result of Encode.
type Payload struct {
	Object      interface{}
	Buffers     [][]byte
	BufferTypes []int
	Callbacks   []interface{}
	Streams     []Stream
}

// MarshalObject returns the JSON encoding of the placeholder tree.
func (p *Payload) MarshalObject() (json.RawMessage, error) {
	return json.Marshal(p.Object)
}

// Defaults is the built-in handler list.
var Defaults = []Handler{
	FileHandler{},
	ErrorHandler{},
}

// Combine returns the handler list used on the wire: the caller's handlers
// followed by Defaults.
func Combine(handlers []Handler) []Handler {
	combined := make([]Handler, 0, len(handlers)+len(Defaults))
	combined = append(combined, handlers...)
	return append(combined, Defaults...)
}
