// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access_test

import (
	"context"
	"testing"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipManager(t *testing.T) {
	t.Parallel()

	store := memory.New()
	mgr, err := access.NewManager(store)
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()
	owner := types.Principal{Type: types.PrincipalUser, ID: "alice"}
	viewer := types.Principal{Type: types.PrincipalUser, ID: "bob"}

	// Seed the owner directly, the way space creation does
	require.NoError(t, store.PutMember(ctx, &types.Member{
		Space: space, Principal: owner, Role: access.RoleOwner,
	}))

	grant := &types.Member{Space: space, Principal: viewer, Role: access.RoleViewer}

	// Without an actor the grant is denied
	assert.ErrorIs(t, mgr.GrantMembership(ctx, grant), access.ErrPermissionDenied)

	// A viewer cannot manage permissions either
	viewerCtx := access.WithActor(ctx, access.Actor{Principal: viewer})
	assert.ErrorIs(t, mgr.GrantMembership(viewerCtx, grant), access.ErrPermissionDenied)

	ownerCtx := access.WithActor(ctx, access.Actor{Principal: owner})
	require.NoError(t, mgr.GrantMembership(ownerCtx, grant))

	members, err := mgr.ListMembers(ownerCtx, space)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, mgr.RevokeMembership(ownerCtx, space, viewer))
	members, err = mgr.ListMembers(ownerCtx, space)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, owner, members[0].Principal)
}

func TestGrantMembershipValidation(t *testing.T) {
	t.Parallel()

	store := memory.New()
	mgr, err := access.NewManager(store)
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()
	owner := types.Principal{Type: types.PrincipalUser, ID: "alice"}
	require.NoError(t, store.PutMember(ctx, &types.Member{
		Space: space, Principal: owner, Role: access.RoleOwner,
	}))
	ownerCtx := access.WithActor(ctx, access.Actor{Principal: owner})

	err = mgr.GrantMembership(ownerCtx, &types.Member{Space: space, Role: access.RoleViewer})
	assert.Error(t, err)

	err = mgr.GrantMembership(ownerCtx, &types.Member{
		Space:     space,
		Principal: types.Principal{Type: types.PrincipalUser, ID: "carol"},
		Role:      "superuser",
	})
	assert.Error(t, err)

	// Explicit capabilities need no role template
	require.NoError(t, mgr.GrantMembership(ownerCtx, &types.Member{
		Space:        space,
		Principal:    types.Principal{Type: types.PrincipalUser, ID: "carol"},
		Capabilities: types.Capabilities(0).With(types.CapRead),
	}))
}
