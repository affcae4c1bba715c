package session

import "errors"

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// ErrSessionKeyRequired is returned by Init when the caller asked to create a
// session with a specific id but provided none.
var ErrSessionKeyRequired = errors.New("session key is required")

// ErrGCIntervalUndefined is returned by StartGC when no interval is configured.
var ErrGCIntervalUndefined = errors.New("session gc interval is not defined")

// ErrMaxAgeUndefined is returned by GC when no default max age is configured.
var ErrMaxAgeUndefined = errors.New("session max age is not defined")
