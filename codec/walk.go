package codec

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type visitResult int

const (
	// descend into the children of a container node.
	descend visitResult = iota
	// skip keeps the replacement returned by the visitor as-is.
	skip
)

// visitFunc inspects a node and returns its replacement. When it returns
// descend, the replacement is ignored and the walker clones the container.
type visitFunc func(v reflect.Value) (interface{}, visitResult, error)

type node struct {
	value reflect.Value
	set   func(interface{})
	path  *ancestor
}

// ancestor is a reference container on the way from the root to a node.
type ancestor struct {
	ptr    uintptr
	typ    reflect.Type
	len    int
	parent *ancestor
}

func (a *ancestor) contains(ptr uintptr, typ reflect.Type, n int) bool {
	for ; a != nil; a = a.parent {
		if a.ptr == ptr && a.typ == typ && a.len == n {
			return true
		}
	}
	return false
}

// enter extends path with v when v refers to shared memory. A value that is
// already its own ancestor is a cycle. Values reached twice through
// different branches are fine.
func enter(path *ancestor, v reflect.Value) (*ancestor, error) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
	default:
		return path, nil
	}
	if v.IsNil() {
		return path, nil
	}
	n := 0
	if v.Kind() == reflect.Slice {
		n = v.Len()
		if n == 0 {
			return path, nil
		}
	}
	ptr := v.Pointer()
	if path.contains(ptr, v.Type(), n) {
		return nil, CycleError{Type: v.Type()}
	}
	return &ancestor{ptr: ptr, typ: v.Type(), len: n, parent: path}, nil
}

// walk clones the tree rooted at root, visiting every node depth first with
// parents before children. It uses an explicit worklist so deeply nested
// input can't exhaust the stack. Self-referencing input fails with a
// CycleError.
func walk(root reflect.Value, visit visitFunc) (interface{}, error) {
	var out interface{}
	stack := []node{{value: root, set: func(v interface{}) { out = v }}}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		replacement, result, err := visit(n.value)
		if err != nil {
			return nil, err
		}
		if result == skip {
			n.set(replacement)
			continue
		}

		v := n.value
		path, err := enter(n.path, v)
		if err != nil {
			return nil, err
		}
		var children []node
		switch v.Kind() {
		case reflect.Ptr, reflect.Interface:
			// Revisit the element in place of its wrapper.
			children = append(children, node{value: v.Elem(), set: n.set, path: path})
		case reflect.Map:
			m := make(map[string]interface{}, v.Len())
			n.set(m)
			keys, err := sortedKeys(v)
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				key := k.name
				children = append(children, node{
					value: v.MapIndex(k.value),
					set:   func(x interface{}) { m[key] = x },
					path:  path,
				})
			}
		case reflect.Slice, reflect.Array:
			s := make([]interface{}, v.Len())
			n.set(s)
			for i := 0; i < v.Len(); i++ {
				i := i
				children = append(children, node{
					value: v.Index(i),
					set:   func(x interface{}) { s[i] = x },
					path:  path,
				})
			}
		case reflect.Struct:
			m := make(map[string]interface{})
			n.set(m)
			for _, f := range structFields(v.Type()) {
				fv, ok := fieldByIndex(v, f.index)
				if !ok {
					continue
				}
				if f.omitEmpty && fv.IsZero() {
					continue
				}
				name := f.name
				children = append(children, node{
					value: fv,
					set:   func(x interface{}) { m[name] = x },
					path:  path,
				})
			}
		default:
			return nil, NoHandlerError{Type: v.Type()}
		}

		// Push in reverse so the first child is visited next.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out, nil
}

type mapKey struct {
	name  string
	value reflect.Value
}

func sortedKeys(v reflect.Value) ([]mapKey, error) {
	keys := make([]mapKey, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := iter.Key()
		var name string
		switch k.Kind() {
		case reflect.String:
			name = k.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			name = strconv.FormatInt(k.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			name = strconv.FormatUint(k.Uint(), 10)
		default:
			return nil, fmt.Errorf("unsupported map key type: %s", k.Type())
		}
		keys = append(keys, mapKey{name: name, value: k})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].name < keys[j].name })
	return keys, nil
}

type field struct {
	name      string
	index     []int
	omitEmpty bool
}

// structFields lists the exported fields of t the way encoding/json names
// them. Untagged embedded structs are flattened.
func structFields(t reflect.Type) []field {
	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts := tag, ""
		if idx := strings.Index(tag, ","); idx >= 0 {
			name, opts = tag[:idx], tag[idx+1:]
		}
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			for _, inner := range structFields(sf.Type) {
				inner.index = append([]int{i}, inner.index...)
				fields = append(fields, inner)
			}
			continue
		}
		if sf.PkgPath != "" {
			// Unexported
			continue
		}
		if name == "" {
			name = sf.Name
		}
		fields = append(fields, field{
			name:      name,
			index:     []int{i},
			omitEmpty: strings.Contains(opts, "omitempty"),
		})
	}
	return fields
}

func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}
