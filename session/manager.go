/*
	Package session maps opaque session ids to per-session application
	objects. It issues ids, refreshes them on contact and garbage-collects
	the ones left untouched for longer than their max age.
*/
package session

import (
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// InitRequest describes a session lookup on contact.
type InitRequest struct {
	// ID is the candidate session id. When empty, it is read from the
	// session cookie of Request.
	ID      string
	Request *http.Request
	// Response receives the Set-Cookie header when a session is created.
	Response http.ResponseWriter
	// MaxAge overrides the session's max age when set.
	MaxAge *time.Duration
	// Create adopts ID instead of minting a new id when it is unknown.
	Create bool
}

// NewManager returns a Manager storing records in store. newObject builds
// the application object of each session; it may be nil.
func NewManager(store Store, newObject func() interface{}, opts *Options) *Manager {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	return &Manager{
		Store:   store,
		New:     newObject,
		opts:    o,
		objects: map[string]interface{}{},
	}
}

// Manager tracks sessions. It is goroutine-safe.
type Manager struct {
	Store Store
	New   func() interface{}

	mu      sync.Mutex
	opts    Options
	objects map[string]interface{}
	gcStop  chan struct{}
	nowFn   func() time.Time // For testing override
}

func (m *Manager) now() time.Time {
	if m.nowFn != nil {
		return m.nowFn()
	}
	return time.Now()
}

// Options returns a copy of the current options.
func (m *Manager) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Apply updates the options. A running GC routine picks up a new interval
// on restart.
func (m *Manager) Apply(u OptionsUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Apply(u)
}

// Init returns the id of the session for req, creating one if needed. A
// known id is touched and gets its max age overwritten when req.MaxAge is
// set.
func (m *Manager) Init(req InitRequest) (string, error) {
	id := req.ID
	if id == "" && req.Request != nil {
		if c, err := req.Request.Cookie(CookieName); err == nil {
			id = c.Value
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" && len(id) == m.opts.IDLength {
		rec, err := m.Store.Get(id)
		if err == nil {
			rec.Touched = m.now()
			if req.MaxAge != nil {
				maxAge := *req.MaxAge
				rec.MaxAge = &maxAge
			}
			if err := m.Store.Set(*rec); err != nil {
				return "", err
			}
			return id, nil
		} else if err != ErrNotFound {
			return "", err
		}
	}

	if req.Create {
		if id == "" {
			return "", ErrSessionKeyRequired
		}
	} else {
		var err error
		id, err = newID(m.opts.IDLength)
		if err != nil {
			return "", err
		}
	}

	rec := Record{
		ID:      id,
		Touched: m.now(),
	}
	if req.MaxAge != nil {
		maxAge := *req.MaxAge
		rec.MaxAge = &maxAge
	}
	if err := m.Store.Set(rec); err != nil {
		return "", err
	}
	m.objects[id] = m.newObject()
	logger.Printf("Created session: %s", id)

	if req.Response != nil {
		http.SetCookie(req.Response, &http.Cookie{
			Name:  CookieName,
			Value: id,
			Path:  "/",
		})
	}
	return id, nil
}

func (m *Manager) newObject() interface{} {
	if m.New == nil {
		return nil
	}
	return m.New()
}

// Create adopts id as a session, touching it if it exists, and returns its
// application object.
func (m *Manager) Create(id string, maxAge *time.Duration) (interface{}, error) {
	if _, err := m.Init(InitRequest{ID: id, Create: true, MaxAge: maxAge}); err != nil {
		return nil, err
	}
	return m.Get(id)
}

// Get returns the application object of a session. Objects of sessions
// loaded from a persistent store are rebuilt on first access.
func (m *Manager) Get(id string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.Store.Get(id); err != nil {
		return nil, err
	}
	obj, ok := m.objects[id]
	if !ok {
		obj = m.newObject()
		m.objects[id] = obj
	}
	return obj, nil
}

// GetData returns the record of a session.
func (m *Manager) GetData(id string) (*Record, error) {
	return m.Store.Get(id)
}

// Touch refreshes the timestamp of a session.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.Store.Get(id)
	if err != nil {
		return err
	}
	rec.Touched = m.now()
	return m.Store.Set(*rec)
}

// Delete evicts a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, id)
	return m.Store.Delete(id)
}

// GC deletes every expired session and returns how many were deleted.
func (m *Manager) GC() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.MaxAge == 0 {
		return 0, ErrMaxAgeUndefined
	}
	records, err := m.Store.List()
	if err != nil {
		return 0, err
	}
	now := m.now()
	deleted := 0
	for _, rec := range records {
		if !rec.Expired(now, m.opts.MaxAge) {
			continue
		}
		if err := m.Store.Delete(rec.ID); err != nil {
			return deleted, err
		}
		delete(m.objects, rec.ID)
		deleted++
	}
	return deleted, nil
}

// StartGC runs GC periodically until StopGC is called. Starting again
// replaces the running routine.
func (m *Manager) StartGC() error {
	m.StopGC()

	m.mu.Lock()
	defer m.mu.Unlock()
	interval := m.opts.GCInterval
	if interval <= 0 {
		return ErrGCIntervalUndefined
	}
	stop := make(chan struct{})
	m.gcStop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			n, err := m.GC()
			if err != nil {
				logger.Printf("Session gc failed: %s", err)
				continue
			}
			if n > 0 {
				logger.Printf("Session gc deleted %d sessions", n)
			}
		}
	}()
	return nil
}

// StopGC stops the GC routine, if running.
func (m *Manager) StopGC() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gcStop != nil {
		close(m.gcStop)
		m.gcStop = nil
	}
}

// newID mints a random hex id of the given length.
func newID(length int) (string, error) {
	var sb strings.Builder
	for sb.Len() < length {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", err
		}
		sb.WriteString(hex.EncodeToString(u[:]))
	}
	return sb.String()[:length], nil
}
