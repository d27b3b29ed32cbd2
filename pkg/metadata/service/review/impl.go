// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/graph"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

const opMerge = "review.merge"

// serviceImpl implements the Service interface
type serviceImpl struct {
	db     db.DB
	graph  graph.Service
	access access.Authorizer
}

// Config holds configuration for the review service
type Config struct {
	DB    db.DB
	Graph graph.Service

	// Access gates operations on the calling actor. Optional; nil means
	// open access (trusted in-process callers).
	Access access.Authorizer
}

// NewService creates a new review service
func NewService(cfg Config) (Service, error) {
	if cfg.DB == nil {
		return nil, service.NewValidationError("DB is required")
	}
	if cfg.Graph == nil {
		return nil, service.NewValidationError("Graph is required")
	}
	return &serviceImpl{db: cfg.DB, graph: cfg.Graph, access: cfg.Access}, nil
}

func (s *serviceImpl) Open(ctx context.Context, req *OpenRequest) (*types.Review, error) {
	if req.Title == "" {
		return nil, service.NewValidationError("title is required")
	}
	if req.SourceBranch == req.TargetBranch {
		return nil, service.NewValidationError("source and target must differ")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, req.SourceBranch, ""); err != nil {
		return nil, err
	}

	// Both endpoints must exist up front, and the source must have history
	src, err := s.graph.GetBranch(ctx, req.Space, req.SourceBranch)
	if err != nil {
		return nil, err
	}
	if src.Head == nil {
		return nil, service.NewValidationError(fmt.Sprintf("branch %q has no commits", req.SourceBranch))
	}
	if _, err := s.graph.GetBranch(ctx, req.Space, req.TargetBranch); err != nil {
		return nil, err
	}

	rev := &types.Review{
		Space:        req.Space,
		Title:        req.Title,
		Author:       req.Author,
		SourceBranch: req.SourceBranch,
		TargetBranch: req.TargetBranch,
		Status:       types.ReviewOpen,
		Labels:       req.Labels,
	}
	if err := s.db.CreateReview(ctx, rev); err != nil {
		return nil, service.NewInternalError(err)
	}

	logger.Info().
		Str("space", req.Space.String()).
		Uint64("number", rev.Number).
		Str("source", req.SourceBranch).
		Str("target", req.TargetBranch).
		Msg("review opened")
	return rev, nil
}

func (s *serviceImpl) Get(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	rev, err := s.db.GetReview(ctx, space, number)
	if err != nil {
		if errors.Is(err, db.ErrReviewNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("review #%d", number))
		}
		return nil, service.NewInternalError(err)
	}
	return rev, nil
}

func (s *serviceImpl) List(ctx context.Context, space uuid.UUID, status types.ReviewStatus) ([]*types.Review, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	reviews, err := s.db.ListReviews(ctx, space, status)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	return reviews, nil
}

func (s *serviceImpl) Comment(ctx context.Context, req *CommentRequest) (*types.ReviewComment, error) {
	if req.Body == "" {
		return nil, service.NewValidationError("comment body is required")
	}
	rev, err := s.Get(ctx, req.Space, req.Number)
	if err != nil {
		return nil, err
	}
	if rev.Status.Terminal() {
		return nil, service.NewConflictError(fmt.Sprintf("review #%d is %s", req.Number, rev.Status))
	}
	if req.ReplyTo != uuid.Nil {
		if _, err := s.db.GetComment(ctx, req.Space, req.ReplyTo); err != nil {
			if errors.Is(err, db.ErrCommentNotFound) {
				return nil, service.NewNotFoundError(fmt.Sprintf("comment %s", req.ReplyTo))
			}
			return nil, service.NewInternalError(err)
		}
	}

	c := &types.ReviewComment{
		Space:   req.Space,
		Review:  req.Number,
		Author:  req.Author,
		Body:    req.Body,
		Path:    req.Path,
		Line:    req.Line,
		ReplyTo: req.ReplyTo,
	}
	if err := s.db.AddComment(ctx, c); err != nil {
		return nil, service.NewInternalError(err)
	}
	return c, nil
}

func (s *serviceImpl) ResolveComment(ctx context.Context, space, id uuid.UUID) error {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return err
	}
	if err := s.db.ResolveComment(ctx, space, id); err != nil {
		if errors.Is(err, db.ErrCommentNotFound) {
			return service.NewNotFoundError(fmt.Sprintf("comment %s", id))
		}
		return service.NewInternalError(err)
	}
	return nil
}

func (s *serviceImpl) ListComments(ctx context.Context, space uuid.UUID, number uint64) ([]*types.ReviewComment, error) {
	if _, err := s.Get(ctx, space, number); err != nil {
		return nil, err
	}
	comments, err := s.db.ListComments(ctx, space, number)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	return comments, nil
}

func (s *serviceImpl) Approve(ctx context.Context, req *ApproveRequest) (*types.Review, error) {
	if req.Reviewer == "" {
		return nil, service.NewValidationError("reviewer is required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapApproveReviews, "", ""); err != nil {
		return nil, err
	}
	rev, err := s.Get(ctx, req.Space, req.Number)
	if err != nil {
		return nil, err
	}
	if rev.Status.Terminal() {
		return nil, service.NewConflictError(fmt.Sprintf("review #%d is %s", req.Number, rev.Status))
	}

	if err := s.db.AddApproval(ctx, &types.ReviewApproval{
		Space:    req.Space,
		Review:   req.Number,
		Reviewer: req.Reviewer,
	}); err != nil {
		return nil, service.NewInternalError(err)
	}

	if rev.Status == types.ReviewOpen {
		target, err := s.graph.GetBranch(ctx, req.Space, rev.TargetBranch)
		if err != nil {
			return nil, err
		}
		required := target.Protection.RequiredApprovals
		if required < 1 {
			required = 1
		}
		approvals, err := s.db.ListApprovals(ctx, req.Space, req.Number)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if len(approvals) >= required {
			rev.Status = types.ReviewApproved
			if err := s.db.UpdateReview(ctx, rev); err != nil {
				return nil, service.NewInternalError(err)
			}
			logger.Info().
				Str("space", req.Space.String()).
				Uint64("number", req.Number).
				Int("approvals", len(approvals)).
				Msg("review approved")
		}
	}
	return rev, nil
}

func (s *serviceImpl) Merge(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, "", ""); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if recorded, err := s.db.GetIdempotentResult(ctx, req.Space, opMerge, req.IdempotencyKey); err == nil {
			var result MergeResult
			if err := json.Unmarshal(recorded, &result); err != nil {
				return nil, service.NewInternalError(fmt.Errorf("decode recorded result: %w", err))
			}
			return &result, nil
		} else if !errors.Is(err, db.ErrIdempotencyMiss) {
			return nil, service.NewInternalError(err)
		}
	}

	rev, err := s.Get(ctx, req.Space, req.Number)
	if err != nil {
		return nil, err
	}
	if rev.Status.Terminal() {
		return nil, service.NewConflictError(fmt.Sprintf("review #%d is %s", req.Number, rev.Status))
	}

	target, err := s.graph.GetBranch(ctx, req.Space, rev.TargetBranch)
	if err != nil {
		return nil, err
	}
	source, err := s.graph.GetBranch(ctx, req.Space, rev.SourceBranch)
	if err != nil {
		return nil, err
	}
	if source.Head == nil {
		return nil, service.NewValidationError(fmt.Sprintf("branch %q has no commits", rev.SourceBranch))
	}

	if err := s.checkMergeGates(ctx, rev, target); err != nil {
		return nil, err
	}

	rev.Status = types.ReviewMerged
	rev.MergedBy = req.Merger
	rev.MergedAt = time.Now().UnixNano()

	snap, fastForward, err := s.mergeHeads(ctx, rev, req, target, source)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Review: rev, Snapshot: snap, FastForward: fastForward}
	if req.IdempotencyKey != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if err := s.db.PutIdempotentResult(ctx, req.Space, opMerge, req.IdempotencyKey, encoded); err != nil {
			logger.Warn().Err(err).Uint64("number", req.Number).Msg("record idempotent result failed")
		}
	}

	logger.Info().
		Str("space", req.Space.String()).
		Uint64("number", req.Number).
		Str("snapshot", snap.ID.String()).
		Bool("fast_forward", fastForward).
		Msg("review merged")
	return result, nil
}

// checkMergeGates enforces the target branch's protection rules. A
// restricted merge requires the calling actor itself to hold
// approve_reviews on the target branch.
func (s *serviceImpl) checkMergeGates(ctx context.Context, rev *types.Review, target *types.Branch) error {
	if !target.Protected {
		return nil
	}
	rules := target.Protection

	if rules.RestrictMerge {
		if err := service.Authorize(ctx, s.access, rev.Space, types.CapApproveReviews, rev.TargetBranch, ""); err != nil {
			return err
		}
	}
	if rules.RequiredApprovals > 0 {
		approvals, err := s.db.ListApprovals(ctx, rev.Space, rev.Number)
		if err != nil {
			return service.NewInternalError(err)
		}
		if len(approvals) < rules.RequiredApprovals {
			return service.NewConflictError(fmt.Sprintf(
				"review #%d has %d of %d required approvals", rev.Number, len(approvals), rules.RequiredApprovals))
		}
	}
	if rules.RequireResolvedComments {
		comments, err := s.db.ListComments(ctx, rev.Space, rev.Number)
		if err != nil {
			return service.NewInternalError(err)
		}
		for _, c := range comments {
			if !c.Resolved {
				return service.NewConflictError(fmt.Sprintf(
					"review #%d has unresolved comments", rev.Number))
			}
		}
	}
	return nil
}

// mergeHeads advances the target head: a fast-forward records the source
// tree under a fresh merge snapshot when the target is an ancestor of the
// source, divergent histories get a three-way merge snapshot.
func (s *serviceImpl) mergeHeads(ctx context.Context, rev *types.Review, req *MergeRequest, target, source *types.Branch) (*types.Snapshot, bool, error) {
	sourceHead := *source.Head

	// An unborn target fast-forwards to the source tree
	if target.Head == nil {
		snap, err := s.recordFastForward(ctx, rev, req, nil, sourceHead)
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	}
	targetHead := *target.Head

	base, err := s.mergeBase(ctx, rev.Space, sourceHead, targetHead)
	if err != nil {
		return nil, false, service.NewInternalError(err)
	}
	if base != nil && *base == sourceHead {
		return nil, false, service.NewConflictError(fmt.Sprintf(
			"branch %q has nothing to merge into %q", rev.SourceBranch, rev.TargetBranch))
	}
	if base != nil && *base == targetHead {
		// The target never moved since the fork
		snap, err := s.recordFastForward(ctx, rev, req, &targetHead, sourceHead)
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	}

	baseTree := types.Tree{}
	if base != nil {
		baseTree, err = s.graph.ReadTree(ctx, rev.Space, *base)
		if err != nil {
			return nil, false, err
		}
	}
	sourceTree, err := s.graph.ReadTree(ctx, rev.Space, sourceHead)
	if err != nil {
		return nil, false, err
	}
	targetTree, err := s.graph.ReadTree(ctx, rev.Space, targetHead)
	if err != nil {
		return nil, false, err
	}

	merged, conflicts := threeWayMerge(baseTree, sourceTree, targetTree)
	if len(conflicts) > 0 {
		return nil, false, service.NewMergeConflictError(conflicts)
	}

	snap := &types.Snapshot{
		ID:       uuid.New(),
		Space:    rev.Space,
		Branch:   rev.TargetBranch,
		Parents:  []uuid.UUID{targetHead, sourceHead},
		TreeHash: merged.Hash(),
		Author:   req.Merger,
		Message:  mergeMessage(req, rev),
	}
	entries := make([]types.TreeEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	if err := s.landMerge(ctx, rev, snap, entries, &targetHead); err != nil {
		return nil, false, err
	}
	return snap, false, nil
}

// recordFastForward writes the source head's tree under a new snapshot
// with the previous target head as parent-of-record, so the target's
// history names the merge even when no three-way merge was needed.
func (s *serviceImpl) recordFastForward(ctx context.Context, rev *types.Review, req *MergeRequest, targetHead *uuid.UUID, sourceHead uuid.UUID) (*types.Snapshot, error) {
	tree, err := s.graph.ReadTree(ctx, rev.Space, sourceHead)
	if err != nil {
		return nil, err
	}

	parents := []uuid.UUID{sourceHead}
	if targetHead != nil {
		parents = []uuid.UUID{*targetHead, sourceHead}
	}
	snap := &types.Snapshot{
		ID:       uuid.New(),
		Space:    rev.Space,
		Branch:   rev.TargetBranch,
		Parents:  parents,
		TreeHash: tree.Hash(),
		Author:   req.Merger,
		Message:  mergeMessage(req, rev),
	}
	entries := make([]types.TreeEntry, 0, len(tree))
	for _, e := range tree {
		entries = append(entries, e)
	}
	if err := s.landMerge(ctx, rev, snap, entries, targetHead); err != nil {
		return nil, err
	}
	return snap, nil
}

// landMerge stores the merge snapshot, swings the head and flips the
// review in one transaction, so a crash cannot leave the head advanced
// with the review still open.
func (s *serviceImpl) landMerge(ctx context.Context, rev *types.Review, snap *types.Snapshot, entries []types.TreeEntry, from *uuid.UUID) error {
	rev.MergeCommit = &snap.ID
	err := s.db.WithTx(ctx, func(tx db.TxStore) error {
		if err := tx.PutSnapshot(ctx, snap, entries); err != nil {
			return err
		}
		if err := tx.UpdateBranchHead(ctx, rev.Space, rev.TargetBranch, from, &snap.ID); err != nil {
			return err
		}
		return tx.UpdateReview(ctx, rev)
	})
	if err != nil {
		return s.headError(err, rev.TargetBranch)
	}
	return nil
}

func mergeMessage(req *MergeRequest, rev *types.Review) string {
	if req.Message != "" {
		return req.Message
	}
	return fmt.Sprintf("Merge branch %q into %q", rev.SourceBranch, rev.TargetBranch)
}

func (s *serviceImpl) headError(err error, branch string) error {
	if errors.Is(err, db.ErrHeadMoved) {
		return service.NewConflictError(fmt.Sprintf("branch %q head moved", branch))
	}
	if errors.Is(err, db.ErrBranchNotFound) {
		return service.NewNotFoundError(fmt.Sprintf("branch %q", branch))
	}
	return service.NewInternalError(err)
}

func (s *serviceImpl) Close(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapWrite, "", ""); err != nil {
		return nil, err
	}
	rev, err := s.Get(ctx, space, number)
	if err != nil {
		return nil, err
	}
	if rev.Status.Terminal() {
		return nil, service.NewConflictError(fmt.Sprintf("review #%d is %s", number, rev.Status))
	}
	rev.Status = types.ReviewClosed
	if err := s.db.UpdateReview(ctx, rev); err != nil {
		return nil, service.NewInternalError(err)
	}
	logger.Info().Str("space", space.String()).Uint64("number", number).Msg("review closed")
	return rev, nil
}
