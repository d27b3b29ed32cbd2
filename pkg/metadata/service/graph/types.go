// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// DefaultBranch is created with every space
const DefaultBranch = "main"

// CreateSpaceRequest provisions a new space
type CreateSpaceRequest struct {
	Name  string
	Owner string // principal ID; granted the owner role
}

// CreateSpaceResult is the outcome of a CreateSpace
type CreateSpaceResult struct {
	Space *types.Space
	Main  *types.Branch
}

// CreateBranchRequest forks a branch
type CreateBranchRequest struct {
	Space uuid.UUID
	Name  string

	// FromBranch names the branch whose head seeds the fork. Ignored when
	// FromSnapshot is set; when both are empty the branch starts unborn.
	FromBranch   string
	FromSnapshot uuid.UUID
}

// PutFileRequest stores content as an immutable file version
type PutFileRequest struct {
	Space    uuid.UUID
	Data     []byte
	MimeType string
}

// ReadFileRequest reads a path at a snapshot
type ReadFileRequest struct {
	Space    uuid.UUID
	Snapshot uuid.UUID
	Path     string
}

// ReadFileResult carries the assembled content
type ReadFileResult struct {
	Entry       types.TreeEntry
	FileVersion *types.FileVersion
	Data        []byte
}

// CommitRequest applies a change set on top of a branch head
type CommitRequest struct {
	Space   uuid.UUID
	Branch  string
	Author  string
	Message string
	Changes []types.PathChange

	// ExpectedHead is the head the caller based its changes on; nil means
	// the branch is expected unborn. Only checked when EnforceHead is set,
	// otherwise the commit applies on whatever head is current.
	ExpectedHead *uuid.UUID
	EnforceHead  bool

	// IdempotencyKey makes retried calls replay the recorded result.
	// Optional.
	IdempotencyKey string
}

// CommitResult is the outcome of a Commit
type CommitResult struct {
	Snapshot *types.Snapshot `json:"snapshot"`
}
