package session

import "time"

const (
	// DefaultIDLength is the length of minted session ids.
	DefaultIDLength = 32
	// DefaultMaxAge is how long an untouched session lives.
	DefaultMaxAge = 2 * time.Hour
	// DefaultGCInterval is the period of the collection routine.
	DefaultGCInterval = 5 * time.Minute
)

// Options configures a Manager.
type Options struct {
	IDLength int
	// MaxAge is the default lifetime of an untouched session. Negative
	// values never expire.
	MaxAge     time.Duration
	GCInterval time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		IDLength:   DefaultIDLength,
		MaxAge:     DefaultMaxAge,
		GCInterval: DefaultGCInterval,
	}
}

// OptionsUpdate is a partial Options. Nil fields are left unchanged.
type OptionsUpdate struct {
	IDLength   *int
	MaxAge     *time.Duration
	GCInterval *time.Duration
}

// Apply overwrites every field set in u.
func (o *Options) Apply(u OptionsUpdate) {
	if u.IDLength != nil {
		o.IDLength = *u.IDLength
	}
	if u.MaxAge != nil {
		o.MaxAge = *u.MaxAge
	}
	if u.GCInterval != nil {
		o.GCInterval = *u.GCInterval
	}
}
