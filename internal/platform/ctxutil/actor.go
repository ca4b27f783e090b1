package ctxutil

import (
	"context"

	"github.com/poldracklab/cogat/internal/domain/atlas"
)

type actorKey struct{}

func WithActor(ctx context.Context, a *atlas.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor returns the authenticated platform user, or nil.
func GetActor(ctx context.Context) *atlas.Actor {
	if a, ok := ctx.Value(actorKey{}).(*atlas.Actor); ok {
		return a
	}
	return nil
}
