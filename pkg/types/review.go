// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "github.com/google/uuid"

// ReviewStatus is the state of a merge-request workflow item.
// Valid transitions: open -> approved -> merged, open|approved -> closed.
// merged and closed are terminal.
type ReviewStatus string

const (
	ReviewOpen     ReviewStatus = "open"
	ReviewApproved ReviewStatus = "approved"
	ReviewMerged   ReviewStatus = "merged"
	ReviewClosed   ReviewStatus = "closed"
)

// Terminal returns true when no further transitions are allowed
func (s ReviewStatus) Terminal() bool {
	return s == ReviewMerged || s == ReviewClosed
}

// Review proposes merging one branch into another within a space.
// Numbers are allocated monotonically per space.
type Review struct {
	Space        uuid.UUID    `json:"space"`
	Number       uint64       `json:"number"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	SourceBranch string       `json:"source_branch"`
	TargetBranch string       `json:"target_branch"`
	Status       ReviewStatus `json:"status"`
	Labels       []string     `json:"labels,omitempty"`
	CreatedAt    int64        `json:"created_at"`
	MergedBy     string       `json:"merged_by,omitempty"`
	MergedAt     int64        `json:"merged_at,omitempty"`
	MergeCommit  *uuid.UUID   `json:"merge_commit,omitempty"`
}

// ReviewComment is a discussion entry on a review, optionally anchored to a
// path and line, optionally replying to another comment.
type ReviewComment struct {
	ID        uuid.UUID `json:"id"`
	Space     uuid.UUID `json:"space"`
	Review    uint64    `json:"review"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Path      string    `json:"path,omitempty"`
	Line      int       `json:"line,omitempty"`
	ReplyTo   uuid.UUID `json:"reply_to,omitempty"`
	Resolved  bool      `json:"resolved"`
	CreatedAt int64     `json:"created_at"`
}

// ReviewApproval records one reviewer's approval of a review.
type ReviewApproval struct {
	Space      uuid.UUID `json:"space"`
	Review     uint64    `json:"review"`
	Reviewer   string    `json:"reviewer"`
	ApprovedAt int64     `json:"approved_at"`
}
