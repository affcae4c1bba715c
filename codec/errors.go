package codec

import (
	"errors"
	"fmt"
	"io"
	"reflect"
)

// ErrCallbacksUnsupported is returned when a decoded callback is invoked on
// a side that can't forward callbacks.
var ErrCallbacksUnsupported = errors.New("callbacks are not supported here")

// ErrStreamsUnsupported is returned when a decoded stream is opened on a
// side that can't request streams.
var ErrStreamsUnsupported = errors.New("streams are not supported here")

// ErrNoStream is returned when opening a file that has no stream attached.
var ErrNoStream = errors.New("file has no stream")

// NoHandlerError is returned when a value is neither plain data nor matched
// by any handler.
type NoHandlerError struct {
	Type reflect.Type
}

func (err NoHandlerError) Error() string {
	return fmt.Sprintf("no handler found for value of type %s", err.Type)
}

// UnknownHandlerError is returned when a tagged reference names a handler
// index that isn't loaded on this side.
type UnknownHandlerError struct {
	Index int
}

func (err UnknownHandlerError) Error() string {
	return fmt.Sprintf("unknown handler index: %d", err.Index)
}

// AssignError is returned when a decoded value can't be stored into the
// destination type.
type AssignError struct {
	Type  reflect.Type
	Value interface{}
	Cause error
}

func (err AssignError) Error() string {
	if err.Cause != nil {
		return fmt.Sprintf("cannot assign %T to %s: %s", err.Value, err.Type, err.Cause)
	}
	return fmt.Sprintf("cannot assign %T to %s", err.Value, err.Type)
}

// SizeError is returned when a file's stream doesn't carry the announced
// number of bytes. It unwraps to io.ErrUnexpectedEOF when the stream ended
// early.
type SizeError struct {
	Want int64
	Got  int64
}

func (err SizeError) Error() string {
	if err.Got < err.Want {
		return fmt.Sprintf("file stream ended after %d of %d bytes", err.Got, err.Want)
	}
	return fmt.Sprintf("file stream is longer than %d bytes", err.Want)
}

func (err SizeError) Unwrap() error {
	if err.Got < err.Want {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// CycleError is returned when encoding a value that contains itself.
type CycleError struct {
	Type reflect.Type
}

func (err CycleError) Error() string {
	return fmt.Sprintf("cycle detected at value of type %s", err.Type)
}
