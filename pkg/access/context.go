// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"

	"github.com/C-0711/Vaultclaw/pkg/types"
)

// Actor is the authenticated caller of an operation: the principal itself
// plus any group principals it belongs to. Identity verification happens
// outside this system; the actor is trusted as given.
type Actor struct {
	Principal types.Principal
	Groups    []types.Principal
}

type actorKey struct{}

// WithActor returns a context carrying the calling actor. Services with an
// Authorizer configured resolve the actor from the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the calling actor from the context.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
