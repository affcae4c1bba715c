package codec

import (
	"encoding/json"
	"reflect"
)

var (
	typeOfMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	typeOfBytes     = reflect.TypeOf([]byte(nil))
)

// Encode replaces functions and handler-managed values in v with
// placeholders. The input is never mutated.
func Encode(v interface{}, handlers []Handler) (*Payload, error) {
	enc := &encoder{
		handlers: handlers,
		payload:  &Payload{},
	}
	obj, err := walk(reflect.ValueOf(v), enc.visit)
	if err != nil {
		return nil, err
	}
	enc.payload.Object = obj
	return enc.payload, nil
}

type encoder struct {
	handlers []Handler
	payload  *Payload
}

func (enc *encoder) visit(v reflect.Value) (interface{}, visitResult, error) {
	if !v.IsValid() {
		return nil, skip, nil
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		if v.IsNil() {
			return nil, skip, nil
		}
	}

	switch v.Kind() {
	case reflect.Func:
		idx := len(enc.payload.Callbacks)
		enc.payload.Callbacks = append(enc.payload.Callbacks, v.Interface())
		return map[string]interface{}{callbackKey: idx}, skip, nil
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if !v.Type().Implements(typeOfMarshaler) {
			return v.Interface(), skip, nil
		}
	}
	if v.Type() == typeOfBytes {
		return v.Interface(), skip, nil
	}

	if v.CanInterface() {
		i := v.Interface()
		for idx, h := range enc.handlers {
			if !h.Test(i) {
				continue
			}
			ref, err := enc.reference(idx, h, i)
			if err != nil {
				return nil, skip, err
			}
			return map[string]interface{}{objectKey: ref}, skip, nil
		}
		if v.Type().Implements(typeOfMarshaler) {
			return i, skip, nil
		}
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return nil, descend, nil
	}
	return nil, skip, NoHandlerError{Type: v.Type()}
}

func (enc *encoder) reference(idx int, h Handler, v interface{}) ([]interface{}, error) {
	encoded, err := h.Encode(v)
	if err != nil {
		return nil, err
	}
	ref := []interface{}{idx, encoded}

	if s, ok := h.(StreamSourcer); ok {
		stream, err := s.StreamSource(v)
		if err != nil {
			return nil, err
		}
		if stream != nil {
			ref = append(ref, len(enc.payload.Streams))
			enc.payload.Streams = append(enc.payload.Streams, stream)
		}
		return ref, nil
	}
	if b, ok := h.(BufferEncoder); ok {
		buf, err := b.EncodeBuffer(v)
		if err != nil {
			return nil, err
		}
		if buf != nil {
			ref = append(ref, len(enc.payload.Buffers))
			enc.payload.Buffers = append(enc.payload.Buffers, buf)
			enc.payload.BufferTypes = append(enc.payload.BufferTypes, idx)
		}
	}
	return ref, nil
}
