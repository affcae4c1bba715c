package rpc

import (
	"github.com/smcp-go/smcp/session"
)

// Protocols selects the transports a Server accepts.
type Protocols struct {
	HTTP bool
	WS   bool
}

// Options configures a Server.
type Options struct {
	// Logging traces every message crossing the wire.
	Logging bool
	// PublicDir is served as static files for non-RPC requests (optional).
	PublicDir string
	// Tokens is the allow-list of connection tokens. When non-empty, a
	// token is required and must be listed.
	Tokens []string
	// RequireToken requires a non-empty token even without an allow-list.
	RequireToken bool
	Protocols    Protocols
	// MaxContentLength is the request size limit for HTTP calls (optional).
	MaxContentLength int64
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Protocols: Protocols{HTTP: true, WS: true},
	}
}

// ProtocolsUpdate is a partial Protocols. Nil fields are left unchanged.
type ProtocolsUpdate struct {
	HTTP *bool
	WS   *bool
}

// OptionsUpdate is a partial Options. Scalars are overwritten when set,
// Tokens is replaced wholesale when non-nil, and nested updates are merged
// field by field.
type OptionsUpdate struct {
	Logging          *bool
	PublicDir        *string
	Tokens           []string
	RequireToken     *bool
	Protocols        *ProtocolsUpdate
	MaxContentLength *int64
	// Session is applied to the server's session manager, if any.
	Session *session.OptionsUpdate
}

// Apply overwrites the fields set in u. Session updates are not part of
// Options and are applied by Server.Apply.
func (o *Options) Apply(u OptionsUpdate) {
	if u.Logging != nil {
		o.Logging = *u.Logging
	}
	if u.PublicDir != nil {
		o.PublicDir = *u.PublicDir
	}
	if u.Tokens != nil {
		tokens := make([]string, len(u.Tokens))
		copy(tokens, u.Tokens)
		o.Tokens = tokens
	}
	if u.RequireToken != nil {
		o.RequireToken = *u.RequireToken
	}
	if u.Protocols != nil {
		if u.Protocols.HTTP != nil {
			o.Protocols.HTTP = *u.Protocols.HTTP
		}
		if u.Protocols.WS != nil {
			o.Protocols.WS = *u.Protocols.WS
		}
	}
	if u.MaxContentLength != nil {
		o.MaxContentLength = *u.MaxContentLength
	}
}

// checkToken validates a connection token against the options.
func (o *Options) checkToken(token string, present bool) error {
	if len(o.Tokens) == 0 && !o.RequireToken {
		return nil
	}
	if !present {
		return TokenError{Reason: "token is required"}
	}
	if token == "" {
		return TokenError{Reason: "token is empty"}
	}
	if len(o.Tokens) == 0 {
		return nil
	}
	for _, t := range o.Tokens {
		if t == token {
			return nil
		}
	}
	return TokenError{Reason: "invalid token"}
}
