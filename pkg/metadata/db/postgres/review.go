// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// ============================================================================
// Review Operations
// ============================================================================

func (s *queries) CreateReview(ctx context.Context, rev *types.Review) error {
	if rev.CreatedAt == 0 {
		rev.CreatedAt = time.Now().UnixNano()
	}
	labels, err := jsonValue(rev.Labels)
	if err != nil {
		return err
	}

	// Allocate the next per-space number in the same statement so concurrent
	// creates never collide.
	var number int64
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO reviews
			(space, number, title, author, source_branch, target_branch, status, labels, created_at)
		SELECT $1, COALESCE(MAX(number), 0) + 1, $2, $3, $4, $5, $6, $7, $8
		FROM reviews WHERE space = $1
		RETURNING number
	`, rev.Space, rev.Title, rev.Author, rev.SourceBranch, rev.TargetBranch,
		string(rev.Status), labels, rev.CreatedAt).Scan(&number)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	rev.Number = uint64(number)
	return nil
}

func (s *queries) GetReview(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error) {
	rev := &types.Review{}
	var num int64
	var status string
	var labels []byte
	var mergeCommit sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT space, number, title, author, source_branch, target_branch,
		       status, labels, created_at, merged_by, merged_at, merge_commit
		FROM reviews
		WHERE space = $1 AND number = $2
	`, space, int64(number)).Scan(&rev.Space, &num, &rev.Title, &rev.Author,
		&rev.SourceBranch, &rev.TargetBranch, &status, &labels,
		&rev.CreatedAt, &rev.MergedBy, &rev.MergedAt, &mergeCommit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	rev.Number = uint64(num)
	rev.Status = types.ReviewStatus(status)
	if err := jsonScan(labels, &rev.Labels); err != nil {
		return nil, err
	}
	if rev.MergeCommit, err = scanNullUUID(mergeCommit); err != nil {
		return nil, err
	}
	return rev, nil
}

func (s *queries) UpdateReview(ctx context.Context, rev *types.Review) error {
	labels, err := jsonValue(rev.Labels)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE reviews SET
			title = $1, status = $2, labels = $3,
			merged_by = $4, merged_at = $5, merge_commit = $6
		WHERE space = $7 AND number = $8
	`, rev.Title, string(rev.Status), labels,
		rev.MergedBy, rev.MergedAt, nullUUID(rev.MergeCommit),
		rev.Space, int64(rev.Number))
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrReviewNotFound
	}
	return nil
}

func (s *queries) ListReviews(ctx context.Context, space uuid.UUID, status types.ReviewStatus) ([]*types.Review, error) {
	query := `
		SELECT space, number, title, author, source_branch, target_branch,
		       status, labels, created_at, merged_by, merged_at, merge_commit
		FROM reviews
		WHERE space = $1`
	args := []any{space}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY number DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*types.Review
	for rows.Next() {
		rev := &types.Review{}
		var num int64
		var st string
		var labels []byte
		var mergeCommit sql.NullString
		if err := rows.Scan(&rev.Space, &num, &rev.Title, &rev.Author,
			&rev.SourceBranch, &rev.TargetBranch, &st, &labels,
			&rev.CreatedAt, &rev.MergedBy, &rev.MergedAt, &mergeCommit); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rev.Number = uint64(num)
		rev.Status = types.ReviewStatus(st)
		if err := jsonScan(labels, &rev.Labels); err != nil {
			return nil, err
		}
		if rev.MergeCommit, err = scanNullUUID(mergeCommit); err != nil {
			return nil, err
		}
		reviews = append(reviews, rev)
	}
	return reviews, rows.Err()
}

func (s *queries) AddComment(ctx context.Context, c *types.ReviewComment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixNano()
	}
	var replyTo any
	if c.ReplyTo != uuid.Nil {
		replyTo = c.ReplyTo
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO review_comments
			(space, id, review, author, body, path, line, reply_to, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.Space, c.ID, int64(c.Review), c.Author, c.Body, c.Path, c.Line, replyTo, c.Resolved, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func scanComment(scan func(dest ...any) error) (*types.ReviewComment, error) {
	c := &types.ReviewComment{}
	var review int64
	var replyTo sql.NullString
	if err := scan(&c.Space, &c.ID, &review, &c.Author, &c.Body, &c.Path,
		&c.Line, &replyTo, &c.Resolved, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Review = uint64(review)
	if id, err := scanNullUUID(replyTo); err != nil {
		return nil, err
	} else if id != nil {
		c.ReplyTo = *id
	}
	return c, nil
}

func (s *queries) GetComment(ctx context.Context, space, id uuid.UUID) (*types.ReviewComment, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT space, id, review, author, body, path, line, reply_to, resolved, created_at
		FROM review_comments
		WHERE space = $1 AND id = $2
	`, space, id)
	c, err := scanComment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *queries) ResolveComment(ctx context.Context, space, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE review_comments SET resolved = TRUE
		WHERE space = $1 AND id = $2
	`, space, id)
	if err != nil {
		return fmt.Errorf("resolve comment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrCommentNotFound
	}
	return nil
}

func (s *queries) ListComments(ctx context.Context, space uuid.UUID, review uint64) ([]*types.ReviewComment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT space, id, review, author, body, path, line, reply_to, resolved, created_at
		FROM review_comments
		WHERE space = $1 AND review = $2
		ORDER BY created_at
	`, space, int64(review))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*types.ReviewComment
	for rows.Next() {
		c, err := scanComment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *queries) AddApproval(ctx context.Context, a *types.ReviewApproval) error {
	if a.ApprovedAt == 0 {
		a.ApprovedAt = time.Now().UnixNano()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO review_approvals (space, review, reviewer, approved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (space, review, reviewer) DO NOTHING
	`, a.Space, int64(a.Review), a.Reviewer, a.ApprovedAt)
	if err != nil {
		return fmt.Errorf("add approval: %w", err)
	}
	return nil
}

func (s *queries) ListApprovals(ctx context.Context, space uuid.UUID, review uint64) ([]*types.ReviewApproval, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT space, review, reviewer, approved_at
		FROM review_approvals
		WHERE space = $1 AND review = $2
		ORDER BY approved_at
	`, space, int64(review))
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*types.ReviewApproval
	for rows.Next() {
		a := &types.ReviewApproval{}
		var num int64
		if err := rows.Scan(&a.Space, &num, &a.Reviewer, &a.ApprovedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		a.Review = uint64(num)
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
