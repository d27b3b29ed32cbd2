// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"strings"

	"github.com/google/uuid"
)

// Capability is one discrete permitted action.
type Capability uint32

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapDelete
	CapPublish
	CapManagePermissions
	CapManageBranches
	CapApproveReviews
)

var capabilityNames = map[Capability]string{
	CapRead:              "read",
	CapWrite:             "write",
	CapDelete:            "delete",
	CapPublish:           "publish",
	CapManagePermissions: "manage_permissions",
	CapManageBranches:    "manage_branches",
	CapApproveReviews:    "approve_reviews",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "unknown"
}

// Capabilities is a bitset of Capability values.
type Capabilities uint32

// Has reports whether the set includes every bit of c
func (s Capabilities) Has(c Capability) bool {
	return s&Capabilities(c) == Capabilities(c)
}

// With returns the set extended by c
func (s Capabilities) With(c Capability) Capabilities {
	return s | Capabilities(c)
}

// Intersect returns the capabilities present in both sets
func (s Capabilities) Intersect(other Capabilities) Capabilities {
	return s & other
}

func (s Capabilities) String() string {
	var names []string
	for _, c := range []Capability{
		CapRead, CapWrite, CapDelete, CapPublish,
		CapManagePermissions, CapManageBranches, CapApproveReviews,
	} {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return strings.Join(names, ",")
}

// PrincipalType distinguishes direct users from groups/teams.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
)

// Principal is an opaque identity supplied by the external identity
// provider. This core never interprets the ID.
type Principal struct {
	Type PrincipalType `json:"type"`
	ID   string        `json:"id"`
}

func (p Principal) String() string {
	return string(p.Type) + ":" + p.ID
}

// Member binds a principal to a space with a capability grant. The grant
// comes either from a named role template or from explicit Capabilities;
// when both are set the explicit bits win. Empty pattern lists mean
// unrestricted.
type Member struct {
	Space          uuid.UUID    `json:"space"`
	Principal      Principal    `json:"principal"`
	Role           string       `json:"role,omitempty"`
	Capabilities   Capabilities `json:"capabilities,omitempty"`
	BranchPatterns []string     `json:"branch_patterns,omitempty"`
	PathPatterns   []string     `json:"path_patterns,omitempty"`
	CreatedAt      int64        `json:"created_at"`
}

// AccessToken is a scoped bearer credential bound to a space. The signed
// token handed to clients carries only the ID; capability evaluation always
// consults this stored record so revocation takes effect immediately.
type AccessToken struct {
	ID             uuid.UUID    `json:"id"`
	Space          uuid.UUID    `json:"space"`
	Issuer         Principal    `json:"issuer"`
	Capabilities   Capabilities `json:"capabilities"`
	BranchPatterns []string     `json:"branch_patterns,omitempty"`
	PathPatterns   []string     `json:"path_patterns,omitempty"`
	IPAllowlist    []string     `json:"ip_allowlist,omitempty"` // CIDR notation
	ExpiresAt      int64        `json:"expires_at,omitempty"`   // Unix nano; 0 = no expiry
	RevokedAt      int64        `json:"revoked_at,omitempty"`
	CreatedAt      int64        `json:"created_at"`
}
