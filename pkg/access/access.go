// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package access evaluates capability grants for space members and scoped
// tokens. Identity comes from outside; this package only decides what an
// already-authenticated principal may do.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrPermissionDenied is returned for both missing grants and missing
	// resources so callers cannot probe for existence.
	ErrPermissionDenied = errors.New("permission denied")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenInvalid = errors.New("token invalid")
)

// Roles are named capability templates. A membership with explicit
// Capabilities overrides its role template.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

var roleCapabilities = map[string]types.Capabilities{
	RoleOwner: types.Capabilities(0).
		With(types.CapRead).With(types.CapWrite).With(types.CapDelete).
		With(types.CapPublish).With(types.CapManagePermissions).
		With(types.CapManageBranches).With(types.CapApproveReviews),
	RoleEditor: types.Capabilities(0).
		With(types.CapRead).With(types.CapWrite).With(types.CapDelete),
	RoleViewer: types.Capabilities(0).With(types.CapRead),
}

// RoleCapabilities resolves a role template to its capability set
func RoleCapabilities(role string) (types.Capabilities, bool) {
	caps, ok := roleCapabilities[role]
	return caps, ok
}

// EffectiveCapabilities returns the capability set granted by a membership:
// explicit bits when set, otherwise the role template.
func EffectiveCapabilities(m *types.Member) types.Capabilities {
	if m.Capabilities != 0 {
		return m.Capabilities
	}
	if caps, ok := roleCapabilities[m.Role]; ok {
		return caps
	}
	return 0
}

// Request describes one access decision: may this principal (plus its group
// memberships) exercise a capability in a space, optionally narrowed to a
// branch and path?
type Request struct {
	Principal  types.Principal
	Groups     []types.Principal
	Space      uuid.UUID
	Capability types.Capability
	Branch     string // empty when not branch-scoped
	Path       string // empty when not path-scoped
}

// Authorizer makes access decisions against stored memberships.
type Authorizer interface {
	// Authorize returns nil when the request is allowed, and
	// ErrPermissionDenied otherwise. Access is the union of all matching
	// memberships: any one grant that covers the capability, branch and
	// path suffices.
	Authorize(ctx context.Context, req Request) error
}

type authorizer struct {
	store db.AccessStore
}

// NewAuthorizer creates an Authorizer backed by the given store
func NewAuthorizer(store db.AccessStore) (Authorizer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &authorizer{store: store}, nil
}

func (a *authorizer) Authorize(ctx context.Context, req Request) error {
	principals := append([]types.Principal{req.Principal}, req.Groups...)
	members, err := a.store.ListMembersForPrincipals(ctx, req.Space, principals)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}

	for _, m := range members {
		if !EffectiveCapabilities(m).Has(req.Capability) {
			continue
		}
		if req.Branch != "" && !MatchAny(m.BranchPatterns, req.Branch) {
			continue
		}
		if req.Path != "" && !MatchAny(m.PathPatterns, req.Path) {
			continue
		}
		return nil
	}
	return ErrPermissionDenied
}
