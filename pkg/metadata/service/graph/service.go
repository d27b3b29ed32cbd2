// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph implements the version graph: spaces, branches, snapshots
// and trees. Snapshots are immutable and parent-linked; branch heads are
// the only mutable pointers and move exclusively through compare-and-swap.
package graph

import (
	"context"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Service defines the interface for version graph operations.
type Service interface {
	// CreateSpace provisions a space with its default "main" branch and an
	// owner membership.
	CreateSpace(ctx context.Context, req *CreateSpaceRequest) (*CreateSpaceResult, error)

	// GetSpace resolves a space by name.
	GetSpace(ctx context.Context, name string) (*types.Space, error)

	// CreateBranch forks a new branch from an existing branch head or
	// pinned snapshot.
	CreateBranch(ctx context.Context, req *CreateBranchRequest) (*types.Branch, error)

	// GetBranch retrieves a branch pointer.
	GetBranch(ctx context.Context, space uuid.UUID, name string) (*types.Branch, error)

	// ListBranches lists a space's branches.
	ListBranches(ctx context.Context, space uuid.UUID) ([]*types.Branch, error)

	// DeleteBranch removes a branch pointer. Snapshots stay in the DAG.
	// Protected branches cannot be deleted.
	DeleteBranch(ctx context.Context, space uuid.UUID, name string) error

	// SetBranchProtection updates a branch's protection state and rules.
	SetBranchProtection(ctx context.Context, space uuid.UUID, name string, protected bool, rules types.ProtectionRules) error

	// PutFile stores content and binds it to an immutable file version,
	// reusing an existing version when the content hash already exists in
	// the space.
	PutFile(ctx context.Context, req *PutFileRequest) (*types.FileVersion, error)

	// ReadFile assembles the content of a path at a snapshot.
	ReadFile(ctx context.Context, req *ReadFileRequest) (*ReadFileResult, error)

	// Commit applies a change set on top of a branch head, producing a new
	// snapshot and advancing the head by compare-and-swap. A moved head
	// surfaces as a conflict; the caller re-reads and retries.
	Commit(ctx context.Context, req *CommitRequest) (*CommitResult, error)

	// GetSnapshot retrieves a snapshot by ID.
	GetSnapshot(ctx context.Context, space, id uuid.UUID) (*types.Snapshot, error)

	// ReadTree retrieves the full materialized tree of a snapshot.
	ReadTree(ctx context.Context, space, snapshot uuid.UUID) (types.Tree, error)

	// Diff computes the path-level changes turning from's tree into to's.
	// A nil from diffs against the empty tree.
	Diff(ctx context.Context, space uuid.UUID, from, to *uuid.UUID) ([]types.PathChange, error)
}
