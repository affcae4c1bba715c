package rpc

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"unicode"

	"github.com/smcp-go/smcp/codec"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()
var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()

// methodArgTypes returns the arg types and whether the method takes a
// context as its first argument.
func methodArgTypes(methodType reflect.Type) (argTypes []reflect.Type, hasCtx bool) {
	argNum := methodType.NumIn()
	argTypes = make([]reflect.Type, 0, argNum)
	argPos := 1 // Skip receiver
	if argPos < argNum && methodType.In(argPos) == typeOfContext {
		hasCtx = true
		argPos++
	}
	for ; argPos < argNum; argPos++ {
		argTypes = append(argTypes, methodType.In(argPos))
	}
	return argTypes, hasCtx
}

// methodErrPos returns the return value index position of an error type for
// supported return layouts: (), (interface{}), (error), (interface{}, error)
func methodErrPos(methodType reflect.Type) (int, bool) {
	switch methodType.NumOut() {
	case 0:
		return -1, true
	case 1:
		if methodType.Out(0) == typeOfError {
			// Single error return value
			return 0, true
		}
		// Single non-error return value
		return -1, true
	case 2:
		if methodType.Out(1) == typeOfError {
			// Two return values, one error type
			return 1, true
		}
	}
	return -1, false
}

// callName is the name a method is called by: its Go name with the first
// letter lowercased.
func callName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// Methods returns a mapping of call names to Method definitions for a
// receiver. Methods with unsupported return values are skipped.
func Methods(receiver interface{}) map[string]*Method {
	kind := reflect.TypeOf(receiver)
	val := reflect.ValueOf(receiver)

	methods := map[string]*Method{}
	for i := 0; i < kind.NumMethod(); i++ {
		method := kind.Method(i)
		if method.PkgPath != "" {
			// Skip unexported methods
			continue
		}
		if method.Type.IsVariadic() {
			continue
		}
		errPos, ok := methodErrPos(method.Type)
		if !ok {
			continue
		}
		argTypes, hasCtx := methodArgTypes(method.Type)
		methods[callName(method.Name)] = &Method{
			Receiver: val,
			Method:   method,
			ArgTypes: argTypes,
			ErrPos:   errPos,
			HasCtx:   hasCtx,
		}
	}
	return methods
}

// methodCache holds the method tables of receiver types.
type methodCache struct {
	types sync.Map // reflect.Type -> map[string]*Method
}

// find returns the method of receiver called name. The Go method name
// matches too.
func (c *methodCache) find(receiver interface{}, name string) (*Method, bool) {
	t := reflect.TypeOf(receiver)
	methods, ok := c.types.Load(t)
	if !ok {
		methods, _ = c.types.LoadOrStore(t, Methods(receiver))
	}
	m, ok := methods.(map[string]*Method)[callName(name)]
	if !ok || (m.Method.Name != name && callName(m.Method.Name) != name) {
		return nil, false
	}
	// Tables are shared per type, bind this receiver.
	bound := *m
	bound.Receiver = reflect.ValueOf(receiver)
	return &bound, true
}

// Method is the definition of a callable method.
type Method struct {
	Receiver reflect.Value
	Method   reflect.Method
	ArgTypes []reflect.Type
	ErrPos   int
	HasCtx   bool
}

// Call executes the method with decoded arguments. Missing arguments are
// zero values; extra arguments are an error.
func (m *Method) Call(ctx context.Context, args []interface{}) (result interface{}, err error) {
	if len(args) > len(m.ArgTypes) {
		return nil, InvalidParamsError{
			Method: m.Method.Name,
			Reason: fmt.Sprintf("expected at most %d args, got %d", len(m.ArgTypes), len(args)),
		}
	}

	arguments := []reflect.Value{m.Receiver}
	if m.HasCtx {
		arguments = append(arguments, reflect.ValueOf(&ctx).Elem())
	}
	for i, argType := range m.ArgTypes {
		arg := reflect.New(argType).Elem()
		if i < len(args) {
			if err := codec.Assign(arg, args[i]); err != nil {
				return nil, InvalidParamsError{Method: m.Method.Name, Reason: err.Error()}
			}
		}
		arguments = append(arguments, arg)
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, PanicError{Method: m.Method.Name, Value: r}
		}
	}()
	reply := m.Method.Func.Call(arguments)

	// Are there any return values?
	if len(reply) == 0 {
		return nil, nil
	}
	// Is there an error return value?
	if m.ErrPos >= 0 && !reply[m.ErrPos].IsNil() {
		return nil, reply[m.ErrPos].Interface().(error)
	}
	if m.ErrPos == 0 {
		return nil, nil
	}

	// All is good, assume the first result is what we want to return
	// This supports (), (err), (res), (res, err)
	return reply[0].Interface(), nil
}
