// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{"exact", "main", "main", true},
		{"exact mismatch", "main", "dev", false},
		{"star within segment", "releases/*", "releases/v1", true},
		{"star does not cross segments", "releases/*", "releases/v1/rc", false},
		{"double star everything", "**", "any/thing/at/all", true},
		{"subtree", "finance/**", "finance/q1/report.pdf", true},
		{"subtree matches root", "finance/**", "finance", true},
		{"subtree mismatch", "finance/**", "hr/q1/report.pdf", false},
		{"question mark", "v?", "v1", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, access.Match(tt.pattern, tt.input))
		})
	}
}

func TestMatchAny_EmptyMeansUnrestricted(t *testing.T) {
	t.Parallel()
	assert.True(t, access.MatchAny(nil, "anything"))
	assert.False(t, access.MatchAny([]string{"main"}, "dev"))
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	space := uuid.New()

	alice := types.Principal{Type: types.PrincipalUser, ID: "alice"}
	bob := types.Principal{Type: types.PrincipalUser, ID: "bob"}
	finance := types.Principal{Type: types.PrincipalGroup, ID: "finance-team"}

	require.NoError(t, store.PutMember(ctx, &types.Member{
		Space:     space,
		Principal: alice,
		Role:      access.RoleOwner,
	}))
	require.NoError(t, store.PutMember(ctx, &types.Member{
		Space:          space,
		Principal:      bob,
		Role:           access.RoleViewer,
		BranchPatterns: []string{"main"},
	}))
	require.NoError(t, store.PutMember(ctx, &types.Member{
		Space:        space,
		Principal:    finance,
		Capabilities: types.Capabilities(0).With(types.CapRead).With(types.CapWrite),
		PathPatterns: []string{"finance/**"},
	}))

	auth, err := access.NewAuthorizer(store)
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     access.Request
		allowed bool
	}{
		{
			name:    "owner can manage permissions",
			req:     access.Request{Principal: alice, Space: space, Capability: types.CapManagePermissions},
			allowed: true,
		},
		{
			name:    "viewer can read scoped branch",
			req:     access.Request{Principal: bob, Space: space, Capability: types.CapRead, Branch: "main"},
			allowed: true,
		},
		{
			name:    "viewer cannot read other branch",
			req:     access.Request{Principal: bob, Space: space, Capability: types.CapRead, Branch: "dev"},
			allowed: false,
		},
		{
			name:    "viewer cannot write",
			req:     access.Request{Principal: bob, Space: space, Capability: types.CapWrite, Branch: "main"},
			allowed: false,
		},
		{
			name: "group grant applies through membership",
			req: access.Request{
				Principal:  bob,
				Groups:     []types.Principal{finance},
				Space:      space,
				Capability: types.CapWrite,
				Path:       "finance/q1/report.pdf",
			},
			allowed: true,
		},
		{
			name: "group grant is path scoped",
			req: access.Request{
				Principal:  bob,
				Groups:     []types.Principal{finance},
				Space:      space,
				Capability: types.CapWrite,
				Path:       "hr/salaries.csv",
			},
			allowed: false,
		},
		{
			name:    "stranger denied",
			req:     access.Request{Principal: types.Principal{Type: types.PrincipalUser, ID: "mallory"}, Space: space, Capability: types.CapRead},
			allowed: false,
		},
		{
			name:    "unknown space denied not distinguished",
			req:     access.Request{Principal: alice, Space: uuid.New(), Capability: types.CapRead},
			allowed: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := auth.Authorize(ctx, tt.req)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, access.ErrPermissionDenied)
			}
		})
	}
}

func TestEffectiveCapabilities_ExplicitBitsWin(t *testing.T) {
	t.Parallel()

	m := &types.Member{
		Role:         access.RoleOwner,
		Capabilities: types.Capabilities(0).With(types.CapRead),
	}
	caps := access.EffectiveCapabilities(m)
	assert.True(t, caps.Has(types.CapRead))
	assert.False(t, caps.Has(types.CapWrite))
}

func TestTokenIssueVerify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	space := uuid.New()
	issuerCaps := types.Capabilities(0).With(types.CapRead).With(types.CapWrite)

	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        space,
		Issuer:       types.Principal{Type: types.PrincipalUser, ID: "alice"},
		Capabilities: types.Capabilities(0).With(types.CapRead),
		PathPatterns: []string{"docs/**"},
	}
	bearer, err := ti.Issue(ctx, record, issuerCaps)
	require.NoError(t, err)
	require.NotEmpty(t, bearer)

	got, err := ti.Verify(ctx, bearer, "")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	// Scope is enforced the same way as membership grants
	assert.NoError(t, access.AuthorizeToken(got, access.Request{
		Space: space, Capability: types.CapRead, Path: "docs/readme.md",
	}))
	assert.ErrorIs(t, access.AuthorizeToken(got, access.Request{
		Space: space, Capability: types.CapRead, Path: "secrets/key.pem",
	}), access.ErrPermissionDenied)
	assert.ErrorIs(t, access.AuthorizeToken(got, access.Request{
		Space: space, Capability: types.CapWrite, Path: "docs/readme.md",
	}), access.ErrPermissionDenied)
}

func TestTokenCapabilitiesBoundedByIssuer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        uuid.New(),
		Capabilities: types.Capabilities(0).With(types.CapRead).With(types.CapManagePermissions),
	}
	bearer, err := ti.Issue(ctx, record, types.Capabilities(0).With(types.CapRead))
	require.NoError(t, err)

	got, err := ti.Verify(ctx, bearer, "")
	require.NoError(t, err)
	assert.True(t, got.Capabilities.Has(types.CapRead))
	assert.False(t, got.Capabilities.Has(types.CapManagePermissions))
}

func TestTokenRevocation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        uuid.New(),
		Capabilities: types.Capabilities(0).With(types.CapRead),
	}
	bearer, err := ti.Issue(ctx, record, record.Capabilities)
	require.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "")
	require.NoError(t, err)

	require.NoError(t, ti.Revoke(ctx, record.ID))

	_, err = ti.Verify(ctx, bearer, "")
	assert.ErrorIs(t, err, access.ErrTokenRevoked)
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        uuid.New(),
		Capabilities: types.Capabilities(0).With(types.CapRead),
		ExpiresAt:    time.Now().Add(-time.Minute).UnixNano(),
	}
	bearer, err := ti.Issue(ctx, record, record.Capabilities)
	require.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "")
	assert.ErrorIs(t, err, access.ErrTokenExpired)
}

func TestTokenIPAllowlist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        uuid.New(),
		Capabilities: types.Capabilities(0).With(types.CapRead),
		IPAllowlist:  []string{"10.0.0.0/8", "192.168.1.5"},
	}
	bearer, err := ti.Issue(ctx, record, record.Capabilities)
	require.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "10.1.2.3")
	assert.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "192.168.1.5")
	assert.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "172.16.0.1")
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	ti, err := access.NewTokenIssuer(store, []byte("test-secret"))
	require.NoError(t, err)

	other, err := access.NewTokenIssuer(store, []byte("other-secret"))
	require.NoError(t, err)

	record := &types.AccessToken{
		Space:        uuid.New(),
		Capabilities: types.Capabilities(0).With(types.CapRead),
	}
	bearer, err := other.Issue(ctx, record, record.Capabilities)
	require.NoError(t, err)

	_, err = ti.Verify(ctx, bearer, "")
	assert.ErrorIs(t, err, access.ErrTokenInvalid)
}
