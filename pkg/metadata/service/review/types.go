// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// OpenRequest proposes merging a source branch into a target branch
type OpenRequest struct {
	Space        uuid.UUID
	Title        string
	Author       string
	SourceBranch string
	TargetBranch string
	Labels       []string
}

// CommentRequest adds a discussion entry to a review
type CommentRequest struct {
	Space  uuid.UUID
	Number uint64
	Author string
	Body   string

	// Path and Line anchor the comment to a location in the diff. Optional.
	Path string
	Line int

	// ReplyTo threads the comment under another. Optional.
	ReplyTo uuid.UUID
}

// ApproveRequest records a reviewer's approval
type ApproveRequest struct {
	Space    uuid.UUID
	Number   uint64
	Reviewer string
}

// MergeRequest folds the review's source branch into its target
type MergeRequest struct {
	Space  uuid.UUID
	Number uint64
	Merger string

	// Message overrides the default merge snapshot message. Optional.
	Message string

	// IdempotencyKey makes retried calls replay the recorded result.
	// Optional.
	IdempotencyKey string
}

// MergeResult is the outcome of a Merge
type MergeResult struct {
	Review *types.Review `json:"review"`

	// Snapshot is the new target head recording the merge: it carries the
	// source tree on a fast-forward, the three-way merged tree otherwise.
	Snapshot *types.Snapshot `json:"snapshot"`

	// FastForward reports that the target pointer simply advanced.
	FastForward bool `json:"fast_forward"`
}
