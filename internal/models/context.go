package models

import "context"

type actorContextKey struct{}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserId string
	Role   Role
}

// SystemActor is used by time-driven transitions.
var SystemActor = Actor{UserId: "system", Role: RoleAdmin}

func (a Actor) IsSystem() bool { return a == SystemActor }

// WithActor attaches the authenticated caller to a context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, a)
}

// ActorFromContext returns the caller, or false if the request is anonymous.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorContextKey{}).(Actor)
	return a, ok
}
