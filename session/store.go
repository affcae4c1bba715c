package session

import (
	"time"
)

// Record is the persisted part of a session.
type Record struct {
	ID      string
	Touched time.Time
	// MaxAge overrides the manager's default when set. Negative values never
	// expire.
	MaxAge *time.Duration
}

// Expired reports whether the record is due for collection at now, given the
// manager's default max age.
func (r Record) Expired(now time.Time, defaultMaxAge time.Duration) bool {
	maxAge := defaultMaxAge
	if r.MaxAge != nil {
		maxAge = *r.MaxAge
	}
	if maxAge < 0 {
		return false
	}
	return now.Sub(r.Touched) >= maxAge
}

// Store is the storage interface used by Manager. It should be goroutine-safe.
type Store interface {
	// Get returns the record for id, or ErrNotFound.
	Get(id string) (*Record, error)
	// Set inserts or replaces a record.
	Set(Record) error
	// Delete removes a record. Deleting an unknown id is not an error.
	Delete(id string) error
	// List returns every record.
	List() ([]Record, error)
	// Close releases the store's resources.
	Close() error
}
