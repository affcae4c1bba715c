package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	typeOfError       = reflect.TypeOf((*error)(nil)).Elem()
	typeOfUnmarshaler = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
)

// Assign stores a decoded value into dst, converting the generic shapes
// produced by Decode (maps, slices, float64) into dst's type. Decoded
// callbacks can be assigned to any func type; the typed function forwards
// its arguments and returns the callback's error in its last error result.
func Assign(dst reflect.Value, src interface{}) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Ptr:
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Func:
		fn, ok := src.(Func)
		if !ok {
			return AssignError{Type: dst.Type(), Value: src}
		}
		dst.Set(funcAdapter(dst.Type(), fn))
		return nil
	case reflect.Struct:
		m, ok := src.(map[string]interface{})
		if !ok || reflect.PtrTo(dst.Type()).Implements(typeOfUnmarshaler) {
			break
		}
		for _, f := range structFields(dst.Type()) {
			value, ok := m[f.name]
			if !ok {
				continue
			}
			fv, ok := allocField(dst, f.index)
			if !ok {
				continue
			}
			if err := Assign(fv, value); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice:
		s, ok := src.([]interface{})
		if !ok || dst.Type() == typeOfBytes {
			break
		}
		out := reflect.MakeSlice(dst.Type(), len(s), len(s))
		for i, item := range s {
			if err := Assign(out.Index(i), item); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Map:
		m, ok := src.(map[string]interface{})
		if !ok || dst.Type().Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(dst.Type(), len(m))
		for k, item := range m {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := Assign(elem, item); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
		}
		dst.Set(out)
		return nil
	}
	return assignJSON(dst, src)
}

// assignJSON converts src through its JSON encoding.
func assignJSON(dst reflect.Value, src interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return AssignError{Type: dst.Type(), Value: src, Cause: err}
	}
	ptr := reflect.New(dst.Type())
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return AssignError{Type: dst.Type(), Value: src, Cause: err}
	}
	dst.Set(ptr.Elem())
	return nil
}

func allocField(v reflect.Value, index []int) (reflect.Value, bool) {
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, v.CanSet()
}

func funcAdapter(t reflect.Type, fn Func) reflect.Value {
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		var args []interface{}
		for i, arg := range in {
			if t.IsVariadic() && i == len(in)-1 {
				for j := 0; j < arg.Len(); j++ {
					args = append(args, arg.Index(j).Interface())
				}
				break
			}
			args = append(args, arg.Interface())
		}
		err := fn(args...)

		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			out[i] = reflect.Zero(t.Out(i))
		}
		if n := t.NumOut(); n > 0 && t.Out(n-1) == typeOfError && err != nil {
			out[n-1] = reflect.ValueOf(&err).Elem()
		}
		return out
	})
}

// Invoke calls fn, which must be a function, with args converted to its
// parameter types. Missing arguments are zero values. The error is the
// function's last result when that result is an error.
func Invoke(fn interface{}, args []interface{}) error {
	switch f := fn.(type) {
	case Func:
		return f(args...)
	case func(...interface{}) error:
		return f(args...)
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("not a function: %T", fn)
	}
	t := v.Type()
	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < t.NumIn(); i++ {
		if t.IsVariadic() && i == t.NumIn()-1 {
			elem := t.In(i).Elem()
			for j := i; j < len(args); j++ {
				arg := reflect.New(elem).Elem()
				if err := Assign(arg, args[j]); err != nil {
					return err
				}
				in = append(in, arg)
			}
			break
		}
		arg := reflect.New(t.In(i)).Elem()
		if i < len(args) {
			if err := Assign(arg, args[i]); err != nil {
				return err
			}
		}
		in = append(in, arg)
	}

	out := v.Call(in)
	if n := len(out); n > 0 && t.Out(n-1) == typeOfError && !out[n-1].IsNil() {
		return out[n-1].Interface().(error)
	}
	return nil
}
