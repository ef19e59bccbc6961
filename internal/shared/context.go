package shared

import (
	"context"
	"strings"
)

// Role names recognised by the workflows.
const (
	RoleAdmin      = "Admin"
	RoleAccounting = "Accounting"
	RoleUser       = "User"
)

// Actor identifies the user performing a request.
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor may perform admin-only transitions such as void.
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(a.Role, RoleAdmin)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.ID != ""
}
