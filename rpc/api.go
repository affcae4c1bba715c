package rpc

import (
	"context"
	"strings"
	"sync"
)

type entryKind int

const (
	kindConstructor entryKind = iota + 1
	kindFactory
	kindNamespace
)

// API is the surface exposed to peers: namespace segments mapped to entries.
// A call path is "/" + namespace segments + method name, for example
// "/dummy/returnString".
type API map[string]*Entry

// Entry is one item of an API surface. Build it with Constructor, Factory or
// Namespace.
type Entry struct {
	kind      entryKind
	construct func() interface{}
	namespace API
	load      func(ctx context.Context) (*Entry, error)

	mu     sync.Mutex
	loaded *Entry
}

// Constructor exposes the methods of the values returned by construct. A
// new value is built for every call unless a Resolver provides one.
func Constructor(construct func() interface{}) *Entry {
	return &Entry{kind: kindConstructor, construct: construct}
}

// Factory lazily obtains the real entry the first time a call reaches it.
// Successful loads are cached; failed loads are retried on the next call.
func Factory(load func(ctx context.Context) (*Entry, error)) *Entry {
	return &Entry{kind: kindFactory, load: load}
}

// Namespace nests an API under a path segment.
func Namespace(api API) *Entry {
	return &Entry{kind: kindNamespace, namespace: api}
}

// New builds a value of a constructor entry.
func (e *Entry) New() interface{} {
	if e.construct == nil {
		return nil
	}
	return e.construct()
}

// resolve follows factories until it reaches a constructor or namespace.
func (e *Entry) resolve(ctx context.Context) (*Entry, error) {
	for e.kind == kindFactory {
		e.mu.Lock()
		loaded := e.loaded
		if loaded == nil {
			var err error
			loaded, err = e.load(ctx)
			if err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.loaded = loaded
		}
		e.mu.Unlock()
		e = loaded
	}
	return e, nil
}

// splitPath returns the namespace segments and the method name of path.
func splitPath(path string) ([]string, string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return nil, segments[len(segments)-1]
	}
	return segments[:len(segments)-1], segments[len(segments)-1]
}

// lookup walks the namespace segments of path and returns the constructor
// entry they lead to, along with the method name.
func (api API) lookup(ctx context.Context, path string) (*Entry, string, error) {
	segments, method := splitPath(path)
	if len(segments) == 0 || method == "" {
		return nil, "", NotFoundError{Path: path, Reason: "invalid call path"}
	}

	current := api
	var entry *Entry
	for i, segment := range segments {
		e, ok := current[segment]
		if !ok || e == nil {
			return nil, "", NotFoundError{Path: path, Reason: "constructor not found"}
		}
		var err error
		if entry, err = e.resolve(ctx); err != nil {
			return nil, "", err
		}
		if i < len(segments)-1 {
			if entry.kind != kindNamespace {
				return nil, "", NotFoundError{Path: path, Reason: "namespace not found"}
			}
			current = entry.namespace
		}
	}
	if entry.kind != kindConstructor {
		return nil, "", NotFoundError{Path: path, Reason: "constructor not found"}
	}
	return entry, method, nil
}

// Path joins segments into a call path.
func Path(segments ...string) string {
	return "/" + strings.Join(segments, "/")
}
