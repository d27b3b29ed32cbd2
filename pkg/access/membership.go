// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"fmt"

	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Manager administers space memberships. Every grant and revoke is itself an
// access-controlled operation: the calling actor needs the manage-permissions
// capability in the target space.
type Manager struct {
	store db.AccessStore
	auth  Authorizer
}

// NewManager creates a membership Manager backed by the given store
func NewManager(store db.AccessStore) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	auth, err := NewAuthorizer(store)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, auth: auth}, nil
}

func (m *Manager) allowed(ctx context.Context, space uuid.UUID) error {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return ErrPermissionDenied
	}
	return m.auth.Authorize(ctx, Request{
		Principal:  actor.Principal,
		Groups:     actor.Groups,
		Space:      space,
		Capability: types.CapManagePermissions,
	})
}

// GrantMembership stores or replaces a membership. The member needs either a
// known role template or an explicit capability set.
func (m *Manager) GrantMembership(ctx context.Context, member *types.Member) error {
	if member.Principal.ID == "" {
		return fmt.Errorf("principal is required")
	}
	if member.Capabilities == 0 {
		if _, ok := RoleCapabilities(member.Role); !ok {
			return fmt.Errorf("unknown role %q", member.Role)
		}
	}
	if err := m.allowed(ctx, member.Space); err != nil {
		return err
	}
	if err := m.store.PutMember(ctx, member); err != nil {
		return fmt.Errorf("store membership: %w", err)
	}
	logger.Info().
		Str("space", member.Space.String()).
		Str("principal", member.Principal.ID).
		Str("role", member.Role).
		Msg("membership granted")
	return nil
}

// RevokeMembership removes a principal's membership from a space.
func (m *Manager) RevokeMembership(ctx context.Context, space uuid.UUID, principal types.Principal) error {
	if err := m.allowed(ctx, space); err != nil {
		return err
	}
	if err := m.store.DeleteMember(ctx, space, principal); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	logger.Info().
		Str("space", space.String()).
		Str("principal", principal.ID).
		Msg("membership revoked")
	return nil
}

// ListMembers returns every membership of a space.
func (m *Manager) ListMembers(ctx context.Context, space uuid.UUID) ([]*types.Member, error) {
	if err := m.allowed(ctx, space); err != nil {
		return nil, err
	}
	return m.store.ListMembers(ctx, space)
}
