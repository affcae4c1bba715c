package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smcp-go/smcp/session"
	"github.com/smcp-go/smcp/session/memory"
)

type counter struct {
	N int
}

func newManager() *session.Manager {
	return session.NewManager(memory.New(), func() interface{} { return &counter{} }, nil)
}

func TestDefaults(t *testing.T) {
	opts := newManager().Options()
	if opts.IDLength != 32 || opts.MaxAge != 2*time.Hour || opts.GCInterval != 5*time.Minute {
		t.Errorf("unexpected defaults: %+v", opts)
	}
}

func TestInit(t *testing.T) {
	m := newManager()

	id, err := m.Init(session.InitRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 32 {
		t.Errorf("got id length %d; want 32", len(id))
	}

	// Known ids are reused.
	if id2, err := m.Init(session.InitRequest{ID: id}); err != nil {
		t.Fatal(err)
	} else if id2 != id {
		t.Errorf("got: %s; want %s", id2, id)
	}

	// Unknown ids are ignored unless Create is set.
	given := strings.Repeat("A", 32)
	if id3, err := m.Init(session.InitRequest{ID: given}); err != nil {
		t.Fatal(err)
	} else if id3 == given {
		t.Error("unknown id was adopted without Create")
	}
	if id4, err := m.Init(session.InitRequest{ID: given, Create: true}); err != nil {
		t.Fatal(err)
	} else if id4 != given {
		t.Errorf("got: %s; want %s", id4, given)
	}

	if _, err := m.Init(session.InitRequest{Create: true}); err != session.ErrSessionKeyRequired {
		t.Errorf("got: %v; want ErrSessionKeyRequired", err)
	}
}

func TestInitCookie(t *testing.T) {
	m := newManager()

	w := httptest.NewRecorder()
	id, err := m.Init(session.InitRequest{
		Request:  httptest.NewRequest("GET", "/", nil),
		Response: w,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := w.Header().Get("Set-Cookie"), "session="+id+"; Path=/"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	// The cookie is read back on the next request.
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: id})
	w = httptest.NewRecorder()
	id2, err := m.Init(session.InitRequest{Request: r, Response: w})
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Errorf("got: %s; want %s", id2, id)
	}
	if c := w.Header().Get("Set-Cookie"); c != "" {
		t.Errorf("unexpected Set-Cookie on known session: %s", c)
	}
}

func TestGet(t *testing.T) {
	m := newManager()
	if _, err := m.Get("not-exists"); err != session.ErrNotFound {
		t.Errorf("got: %v; want ErrNotFound", err)
	}

	id, err := m.Init(session.InitRequest{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	obj.(*counter).N++
	obj, _ = m.Get(id)
	if n := obj.(*counter).N; n != 1 {
		t.Errorf("got counter %d; want 1", n)
	}
}

func TestCreate(t *testing.T) {
	m := newManager()
	maxAge := time.Second
	obj, err := m.Create(strings.Repeat("B", 32), &maxAge)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.(*counter); !ok {
		t.Errorf("got %T; want *counter", obj)
	}
	rec, err := m.GetData(strings.Repeat("B", 32))
	if err != nil {
		t.Fatal(err)
	}
	if rec.MaxAge == nil || *rec.MaxAge != maxAge {
		t.Errorf("got max age %v; want %s", rec.MaxAge, maxAge)
	}
}

func TestGC(t *testing.T) {
	now := time.Now()
	m := newManager()
	session.SetNow(m, func() time.Time { return now })
	m.Apply(session.OptionsUpdate{MaxAge: durationPtr(time.Millisecond)})

	expired, _ := m.Init(session.InitRequest{})
	fresh, _ := m.Init(session.InitRequest{})
	forever, _ := m.Init(session.InitRequest{MaxAge: durationPtr(-1)})

	// Age the expired and forever sessions by exactly max age.
	session.SetNow(m, func() time.Time { return now.Add(-time.Millisecond) })
	for _, id := range []string{expired, forever} {
		if err := m.Touch(id); err != nil {
			t.Fatal(err)
		}
	}
	session.SetNow(m, func() time.Time { return now })

	n, err := m.GC()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d deleted; want 1", n)
	}
	if _, err := m.Get(expired); err != session.ErrNotFound {
		t.Errorf("expired session still present: %v", err)
	}
	for _, id := range []string{fresh, forever} {
		if _, err := m.Get(id); err != nil {
			t.Errorf("session %s was collected: %s", id, err)
		}
	}
}

func TestGCRoutine(t *testing.T) {
	m := newManager()
	m.Apply(session.OptionsUpdate{GCInterval: durationPtr(0)})
	if err := m.StartGC(); err != session.ErrGCIntervalUndefined {
		t.Errorf("got: %v; want ErrGCIntervalUndefined", err)
	}

	m.Apply(session.OptionsUpdate{
		GCInterval: durationPtr(time.Millisecond),
		MaxAge:     durationPtr(time.Nanosecond),
	})
	id, _ := m.Init(session.InitRequest{})
	if err := m.StartGC(); err != nil {
		t.Fatal(err)
	}
	// Restarting is fine.
	if err := m.StartGC(); err != nil {
		t.Fatal(err)
	}
	defer m.StopGC()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Get(id); err == session.ErrNotFound {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("gc routine did not collect the session")
}

func TestOptionsApply(t *testing.T) {
	opts := session.DefaultOptions()
	length := 16
	opts.Apply(session.OptionsUpdate{IDLength: &length})
	want := session.DefaultOptions()
	want.IDLength = 16
	if opts != want {
		t.Errorf("got: %+v; want %+v", opts, want)
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
