package reload

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounce(t *testing.T) {
	var calls int32
	w := &Watcher{
		Delay:    20 * time.Millisecond,
		OnChange: func(string) { atomic.AddInt32(&calls, 1) },
	}
	for i := 0; i < 5; i++ {
		w.trigger("a")
	}
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("got %d calls; want 1", got)
	}
}

func TestWatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "smcp-reload")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "tokens.txt")
	other := filepath.Join(dir, "other.txt")
	if err := ioutil.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 10)
	w := &Watcher{
		Paths:    []string{path},
		Delay:    20 * time.Millisecond,
		OnChange: func(p string) { changed <- p },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	if err := ioutil.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("got: %q; want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("got: %v; want %v", err, context.Canceled)
	}
}
