package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// Func is the decoded form of a callback placeholder. Calling it forwards
// the arguments to the peer that owns the original function.
type Func func(args ...interface{}) error

// Hooks connect decoded placeholders back to the connection they came from.
type Hooks struct {
	// OnCallback is called when a decoded Func is invoked.
	OnCallback func(index int, args []interface{}) error
	// OnStream is called when a decoded reference opens its stream.
	OnStream func(index int) (io.ReadCloser, error)
}

// Decode parses object and rebuilds callbacks and handler-managed values
// from their placeholders. Numbers decode as float64.
func Decode(object json.RawMessage, buffers [][]byte, handlers []Handler, hooks Hooks) (interface{}, error) {
	if len(object) == 0 {
		return nil, nil
	}
	var tree interface{}
	if err := json.Unmarshal(object, &tree); err != nil {
		return nil, err
	}
	return DecodeTree(tree, buffers, handlers, hooks)
}

// DecodeTree is Decode for an already parsed JSON tree.
func DecodeTree(tree interface{}, buffers [][]byte, handlers []Handler, hooks Hooks) (interface{}, error) {
	dec := &decoder{
		handlers: handlers,
		buffers:  buffers,
		hooks:    hooks,
	}
	return walk(reflect.ValueOf(tree), dec.visit)
}

type decoder struct {
	handlers []Handler
	buffers  [][]byte
	hooks    Hooks
}

func (dec *decoder) visit(v reflect.Value) (interface{}, visitResult, error) {
	if !v.IsValid() {
		return nil, skip, nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, skip, nil
		}
		return nil, descend, nil
	case reflect.Slice:
		return nil, descend, nil
	case reflect.Map:
		m, ok := v.Interface().(map[string]interface{})
		if !ok || len(m) != 1 {
			return nil, descend, nil
		}
		if idx, ok := m[callbackKey]; ok {
			fn, err := dec.callback(idx)
			return fn, skip, err
		}
		if ref, ok := m[objectKey]; ok {
			obj, err := dec.reference(ref)
			return obj, skip, err
		}
		return nil, descend, nil
	}
	return v.Interface(), skip, nil
}

func (dec *decoder) callback(raw interface{}) (Func, error) {
	idx, ok := toIndex(raw)
	if !ok {
		return nil, fmt.Errorf("invalid callback index: %v", raw)
	}
	onCallback := dec.hooks.OnCallback
	return func(args ...interface{}) error {
		if onCallback == nil {
			return ErrCallbacksUnsupported
		}
		return onCallback(idx, args)
	}, nil
}

func (dec *decoder) reference(raw interface{}) (interface{}, error) {
	ref, ok := raw.([]interface{})
	if !ok || len(ref) < 2 {
		return nil, fmt.Errorf("invalid object reference: %v", raw)
	}
	idx, ok := toIndex(ref[0])
	if !ok {
		return nil, fmt.Errorf("invalid handler index: %v", ref[0])
	}
	if idx >= len(dec.handlers) {
		return nil, UnknownHandlerError{Index: idx}
	}
	encoded, err := json.Marshal(ref[1])
	if err != nil {
		return nil, err
	}

	var extra Extra
	if len(ref) > 2 && ref[2] != nil {
		bi, ok := toIndex(ref[2])
		if !ok {
			return nil, fmt.Errorf("invalid stream index: %v", ref[2])
		}
		if bi < len(dec.buffers) {
			extra.Buffer = dec.buffers[bi]
		}
		onStream := dec.hooks.OnStream
		extra.OpenStream = func() (io.ReadCloser, error) {
			if onStream == nil {
				return nil, ErrStreamsUnsupported
			}
			return onStream(bi)
		}
	}
	return dec.handlers[idx].Decode(encoded, extra)
}

func toIndex(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
