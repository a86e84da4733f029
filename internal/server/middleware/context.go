package middleware

import "context"

type contextKey struct{ name string }

var (
	actorIDKey   = contextKey{"actor_id"}
	actorRoleKey = contextKey{"actor_role"}
)

// WithActor returns a context carrying the authenticated operator's id and role.
func WithActor(ctx context.Context, id, role string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey, id)
	ctx = context.WithValue(ctx, actorRoleKey, role)
	return ctx
}

// GetActorID returns the operator id from context and true if set; otherwise "", false.
func GetActorID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorIDKey).(string)
	return v, ok && v != ""
}

// GetActorRole returns the operator role from context and true if set; otherwise "", false.
func GetActorRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorRoleKey).(string)
	return v, ok && v != ""
}
