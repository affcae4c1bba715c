// Package reload watches files and reports changes after they settle.
package reload

import (
	"context"
	"io"
	"io/ioutil"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long a file must be quiet before OnChange runs.
const DefaultDelay = 300 * time.Millisecond

var logger *log.Logger

// SetLogger overrides the logger output for this package.
func SetLogger(w io.Writer) {
	flags := log.Flags()
	prefix := "[reload] "
	logger = log.New(w, prefix, flags)
}

func init() {
	SetLogger(ioutil.Discard)
}

// Watcher calls OnChange once a burst of changes to any of Paths is over.
type Watcher struct {
	Paths []string
	// Delay defaults to DefaultDelay.
	Delay    time.Duration
	OnChange func(path string)

	mu    sync.Mutex
	timer *time.Timer
	last  string
}

func (w *Watcher) delay() time.Duration {
	if w.Delay > 0 {
		return w.Delay
	}
	return DefaultDelay
}

// trigger restarts the quiet period for path.
func (w *Watcher) trigger(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = path
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay(), w.flush)
		return
	}
	w.timer.Reset(w.delay())
}

func (w *Watcher) flush() {
	w.mu.Lock()
	path := w.last
	w.mu.Unlock()
	if w.OnChange != nil {
		w.OnChange(path)
	}
}

// Run watches until ctx is done. Directories of the paths are watched so
// that files replaced by rename are still followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range w.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return err
		}
		dirs[dir] = true
	}

	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || !watched[name] {
				continue
			}
			logger.Printf("Changed: %s (%s)", name, ev.Op)
			w.trigger(name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Printf("Watch error: %s", err)
		}
	}
}
