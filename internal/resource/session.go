package resource

import "context"

// Session is the per-connection surface a handler may reach back into.
// The connection handler attaches its session to the request context
// before dispatching, so subscribe/unsubscribe actions can bind the
// calling client to a resource's event stream.
type Session interface {
	// Subscribe adds the session to the topic's event stream.
	Subscribe(topic string)

	// Unsubscribe removes the session from the topic's event stream.
	Unsubscribe(topic string)
}

type sessionKey struct{}

// WithSession attaches a session to the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the session, or nil when dispatch happens outside a
// live connection (tests, backfills).
func SessionFrom(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}
