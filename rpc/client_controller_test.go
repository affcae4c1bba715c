package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smcp-go/smcp/message"
	"golang.org/x/sync/errgroup"
)

// recorder collects sent messages.
type recorder struct {
	mu   sync.Mutex
	sent []*message.Message
	ch   chan *message.Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *message.Message, 64)}
}

func (r *recorder) send(msg *message.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	r.ch <- msg
	return nil
}

func (r *recorder) next(t *testing.T) *message.Message {
	t.Helper()
	select {
	case msg := <-r.ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestClientIDsUnique(t *testing.T) {
	c := NewClientController(func(*message.Message) error { return nil }, nil)

	const n = 100
	ids := make(chan uint32, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ids <- c.NextID()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(ids)

	seen := map[uint32]bool{}
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id: %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d ids; want %d", len(seen), n)
	}

	// Issued in order, ids increase.
	a, b := c.NextID(), c.NextID()
	if a >= b {
		t.Errorf("ids not increasing: %d then %d", a, b)
	}
}

func TestClientCorrelation(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)

	type result struct {
		path string
		got  string
		err  error
	}
	results := make(chan result, 3)
	for i := 1; i <= 3; i++ {
		path := fmt.Sprintf("/test/call%d", i)
		go func() {
			var got string
			err := c.Call(context.Background(), &got, path)
			results <- result{path, got, err}
		}()
		// Wait for the request so ids map to paths in order.
		rec.next(t)
	}

	byID := map[uint32]string{}
	for _, msg := range rec.sent {
		byID[msg.ID] = msg.Request.Path
	}

	for _, id := range []uint32{2, 1, 3} {
		raw, _ := json.Marshal([]interface{}{nil, byID[id]})
		if err := c.Process(message.NewResponse(id, raw)); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		r := <-results
		if r.err != nil {
			t.Errorf("%s: %s", r.path, r.err)
		}
		if r.got != r.path {
			t.Errorf("got: %q; want %q", r.got, r.path)
		}
	}
	if n := c.Pending(); n != 0 {
		t.Errorf("pending calls left: %d", n)
	}
}

func TestClientStrayResponse(t *testing.T) {
	c := NewClientController(func(*message.Message) error { return nil }, nil)
	raw, _ := json.Marshal([]interface{}{nil, 1})
	if err := c.Process(message.NewResponse(42, raw)); err != nil {
		t.Errorf("stray response should be ignored: %s", err)
	}
}

func TestClientErrorResponse(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)

	errc := make(chan error, 1)
	go func() {
		errc <- c.Call(context.Background(), nil, "/test/fail")
	}()
	req := rec.next(t)

	raw := json.RawMessage(`[{"$object":[1,{"message":"boom","name":"*errors.errorString"}]},null]`)
	if err := c.Process(message.NewResponse(req.ID, raw)); err != nil {
		t.Fatal(err)
	}
	err := <-errc
	if err == nil || err.Error() != "boom" {
		t.Errorf("got: %v; want boom", err)
	}
}

func TestClientCancel(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)

	errc := make(chan error, 2)
	go func() {
		errc <- c.Call(context.Background(), nil, "/test/call")
	}()
	go func() {
		_, err := c.SessionRequest(context.Background(), c.NextID(), "")
		errc <- err
	}()
	rec.next(t)
	rec.next(t)

	closed := errors.New("closed")
	c.Cancel(TransportError{Cause: closed})
	for i := 0; i < 2; i++ {
		err := <-errc
		if !errors.Is(err, closed) {
			t.Errorf("got: %v; want transport error", err)
		}
	}
	if n := c.Pending(); n != 0 {
		t.Errorf("pending calls left: %d", n)
	}
}

func TestClientContextDeadline(t *testing.T) {
	c := NewClientController(func(*message.Message) error { return nil }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, nil, "/test/never"); err != context.DeadlineExceeded {
		t.Errorf("got: %v; want deadline exceeded", err)
	}
	if n := c.Pending(); n != 0 {
		t.Errorf("pending calls left: %d", n)
	}
}

func TestClientCallback(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)

	var progress []int
	onProgress := func(v int) {
		progress = append(progress, v)
	}
	errc := make(chan error, 1)
	go func() {
		errc <- c.Call(context.Background(), nil, "/test/progress", onProgress)
	}()
	req := rec.next(t)
	if got, want := string(req.Request.Args), `[{"$callback":0}]`; got != want {
		t.Errorf("got: %s; want %s", got, want)
	}

	for _, v := range []int{10, 50, 90} {
		raw, _ := json.Marshal([]interface{}{v})
		if err := c.Process(message.NewCallback(req.ID, 0, raw)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Process(message.NewCallback(req.ID, 3, json.RawMessage(`[]`))); err == nil {
		t.Error("expected invalid callback index error")
	}
	raw, _ := json.Marshal([]interface{}{nil, nil})
	if err := c.Process(message.NewResponse(req.ID, raw)); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got, want := fmt.Sprint(progress), "[10 50 90]"; got != want {
		t.Errorf("got: %s; want %s", got, want)
	}
}

func TestClientCancelGeneration(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)
	var gen uint64 = 1
	c.Generation = func() uint64 { return gen }

	old := make(chan error, 1)
	go func() {
		old <- c.Call(context.Background(), nil, "/test/old")
	}()
	rec.next(t)

	// Reconnected: calls from here on belong to the second connection.
	gen = 2
	current := make(chan error, 1)
	go func() {
		current <- c.Call(context.Background(), nil, "/test/current")
	}()
	req := rec.next(t)

	// The first connection reports its close late.
	closed := errors.New("closed")
	c.CancelGeneration(1, TransportError{Cause: closed})
	if err := <-old; !errors.Is(err, closed) {
		t.Errorf("got: %v; want transport error", err)
	}
	if n := c.Pending(); n != 1 {
		t.Fatalf("got %d pending calls; want 1", n)
	}

	raw, _ := json.Marshal([]interface{}{nil, nil})
	if err := c.Process(message.NewResponse(req.ID, raw)); err != nil {
		t.Fatal(err)
	}
	if err := <-current; err != nil {
		t.Errorf("call on the new connection failed: %s", err)
	}
}

func TestClientCallbackPanic(t *testing.T) {
	rec := newRecorder()
	c := NewClientController(rec.send, nil)

	onProgress := func(v int) {
		panic("bad progress")
	}
	errc := make(chan error, 1)
	go func() {
		errc <- c.Call(context.Background(), nil, "/test/progress", onProgress)
	}()
	req := rec.next(t)

	err := c.Process(message.NewCallback(req.ID, 0, json.RawMessage(`[1]`)))
	var panicErr PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("got: %v; want PanicError", err)
	}
	if panicErr.Value != "bad progress" {
		t.Errorf("got panic value %v", panicErr.Value)
	}

	// The call is still pending and settles normally.
	raw, _ := json.Marshal([]interface{}{nil, nil})
	if err := c.Process(message.NewResponse(req.ID, raw)); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
}
