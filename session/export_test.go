package session

import "time"

// SetNow overrides the clock of m.
func SetNow(m *Manager, fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = fn
}
