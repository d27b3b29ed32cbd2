// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Authorize gates a service operation on the calling actor's capabilities.
// A nil authorizer disables enforcement (in-process composition and tests).
// With enforcement on, a context without an actor is denied outright, and
// denial never discloses whether the resource exists.
func Authorize(ctx context.Context, a access.Authorizer, space uuid.UUID, capability types.Capability, branch, path string) error {
	if a == nil {
		return nil
	}
	actor, ok := access.ActorFrom(ctx)
	if !ok {
		return NewPermissionDeniedError()
	}
	err := a.Authorize(ctx, access.Request{
		Principal:  actor.Principal,
		Groups:     actor.Groups,
		Space:      space,
		Capability: capability,
		Branch:     branch,
		Path:       path,
	})
	if err != nil {
		if errors.Is(err, access.ErrPermissionDenied) {
			return NewPermissionDeniedError()
		}
		return NewInternalError(err)
	}
	return nil
}
