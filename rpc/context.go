package rpc

import (
	"context"

	"github.com/smcp-go/smcp/session"
)

type contextKey string

var ctxSession contextKey = "session"

type sessionRef struct {
	id      string
	manager *session.Manager
}

func withSession(ctx context.Context, id string, manager *session.Manager) context.Context {
	return context.WithValue(ctx, ctxSession, sessionRef{id: id, manager: manager})
}

// CtxSessionID returns the session id of the peer that issued the current
// call.
func CtxSessionID(ctx context.Context) (string, error) {
	ref, ok := ctx.Value(ctxSession).(sessionRef)
	if !ok || ref.id == "" {
		return "", ErrContextMissingValue{ctxSession}
	}
	return ref.id, nil
}

// CtxSession returns the session object of the peer that issued the current
// call.
func CtxSession(ctx context.Context) (interface{}, error) {
	ref, ok := ctx.Value(ctxSession).(sessionRef)
	if !ok || ref.id == "" || ref.manager == nil {
		return nil, ErrContextMissingValue{ctxSession}
	}
	return ref.manager.Get(ref.id)
}
