package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupportedOverHTTP is returned by HTTPClient when the arguments carry
// callbacks or streams, which need a persistent connection.
var ErrUnsupportedOverHTTP = errors.New("callbacks and streams are not supported over http")

// ErrNotConnected is returned when sending on a closed connection.
var ErrNotConnected = errors.New("not connected")

// ErrSessionUndefined is returned when a call needs a session but the peer
// never completed the session handshake.
var ErrSessionUndefined = errors.New("session is undefined")

// ErrStreamAborted is returned by stream readers whose peer disconnected.
var ErrStreamAborted = errors.New("stream aborted")

// ErrStreamsUnsupported is returned when a stream is requested over a
// one-shot HTTP exchange.
var ErrStreamsUnsupported = errors.New("streams require a persistent connection")

// TransportError rejects pending calls when the connection closes or fails.
type TransportError struct {
	Cause error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", err.Cause)
}

func (err TransportError) Unwrap() error {
	return err.Cause
}

// TokenError is returned when a connection token is missing or not allowed.
type TokenError struct {
	Reason string
}

func (err TokenError) Error() string {
	return err.Reason
}

// NotFoundError is returned when a call path doesn't resolve to a method.
type NotFoundError struct {
	Path   string
	Reason string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", err.Reason, err.Path)
}

// InvalidParamsError is returned when call arguments don't fit the method.
type InvalidParamsError struct {
	Method string
	Reason string
}

func (err InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s: %s", err.Method, err.Reason)
}

// PanicError wraps a panic recovered from a method.
type PanicError struct {
	Method string
	Value  interface{}
}

func (err PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", err.Method, err.Value)
}

// StreamNotFoundError is returned when a stream frame has no open sink.
type StreamNotFoundError struct {
	ID uint32
}

func (err StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream not found for message: %d", err.ID)
}

// ErrContextMissingValue is returned when a context is missing an expected value.
type ErrContextMissingValue struct {
	Key contextKey
}

func (err ErrContextMissingValue) Error() string {
	return fmt.Sprintf("context missing value: %s", string(err.Key))
}

// HTTPRequestError is used when RPC over HTTP encounters an error during transport.
type HTTPRequestError struct {
	Response *http.Response
	Reason   string
}

func (err HTTPRequestError) Error() string {
	return fmt.Sprintf("http rpc request error: %s", err.Reason)
}
