// Package actorcontext carries the acting identity through a request. Host
// middleware injects the actor once; the audit engine reads it wherever a
// mutation fires, without any global mutable state.
//
// Usage in middleware:
//
//	ctx = actorcontext.WithActor(ctx, actorcontext.Actor{ID: userID})
//
// Usage in services and tests:
//
//	actor, ok := actorcontext.From(ctx)
package actorcontext

import "context"

// Actor identifies who performed a mutation. Ref is the free-form string
// form of the identity (kept even when the ID is an opaque value) so audit
// rows stay readable after the identity store forgets the actor.
type Actor struct {
	ID  string
	Ref string
}

type actorKey struct{}

// ContextKey is exported for tests that need raw context.WithValue.
var ContextKey = actorKey{}

// WithActor injects the acting identity into the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextKey, actor)
}

// From retrieves the acting identity. The second return is false when no
// actor was injected, which callers must treat as an anonymous mutation.
func From(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ContextKey).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}
