package shared

import (
	"context"
	"strings"
)

type sessionContextKey struct{}

// Session value keys describing the signed-in actor.
const (
	SessionKeyName = "actor_name"
	SessionKeyRole = "actor_role"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Valid reports whether the actor carries an identity.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ActorFromContext resolves the signed-in actor from the request session.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return Actor{}, false
	}
	actor := Actor{
		ID:   strings.TrimSpace(sess.User()),
		Name: sess.Get(SessionKeyName),
		Role: sess.Get(SessionKeyRole),
	}
	return actor, actor.Valid()
}

// SignIn binds the actor to the session under a fresh id and drops the
// anonymous CSRF token.
func (s *Session) SignIn(actor Actor) {
	s.Regenerate()
	s.Delete(CSRFSessionKey)
	s.SetUser(actor.ID)
	s.Set(SessionKeyName, actor.Name)
	s.Set(SessionKeyRole, actor.Role)
}
