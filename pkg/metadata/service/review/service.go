// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package review implements the merge-request workflow: a review proposes
// merging a source branch into a target branch, collects comments and
// approvals, and ends merged or closed.
package review

import (
	"context"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Service defines the interface for review operations.
type Service interface {
	// Open creates a review proposing source -> target.
	Open(ctx context.Context, req *OpenRequest) (*types.Review, error)

	// Get retrieves a review by number.
	Get(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error)

	// List returns a space's reviews newest-first, optionally filtered by
	// status.
	List(ctx context.Context, space uuid.UUID, status types.ReviewStatus) ([]*types.Review, error)

	// Comment adds a discussion entry. Allowed while the review is open or
	// approved.
	Comment(ctx context.Context, req *CommentRequest) (*types.ReviewComment, error)

	// ResolveComment marks a comment thread resolved.
	ResolveComment(ctx context.Context, space, id uuid.UUID) error

	// ListComments returns a review's comments oldest-first.
	ListComments(ctx context.Context, space uuid.UUID, number uint64) ([]*types.ReviewComment, error)

	// Approve records a reviewer's approval and promotes the review to
	// approved once the target's required count is met. Repeat approvals
	// by the same reviewer count once.
	Approve(ctx context.Context, req *ApproveRequest) (*types.Review, error)

	// Merge folds the source branch into the target, honoring the
	// target's protection rules. Independent changes merge cleanly;
	// concurrent edits of the same path surface as a merge conflict
	// naming the paths.
	Merge(ctx context.Context, req *MergeRequest) (*MergeResult, error)

	// Close ends a review without merging.
	Close(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error)
}
