// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

func reviewKey(space uuid.UUID, number uint64) string {
	return fmt.Sprintf("%s/%d", space, number)
}

func copyReview(r *types.Review) *types.Review {
	cp := *r
	cp.Labels = append([]string(nil), r.Labels...)
	if r.MergeCommit != nil {
		mc := *r.MergeCommit
		cp.MergeCommit = &mc
	}
	return &cp
}

func (d *DB) CreateReview(ctx context.Context, rev *types.Review) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reviewSeq[rev.Space]++
	rev.Number = d.reviewSeq[rev.Space]
	if rev.CreatedAt == 0 {
		rev.CreatedAt = time.Now().UnixNano()
	}
	d.reviews[reviewKey(rev.Space, rev.Number)] = copyReview(rev)
	return nil
}

func (d *DB) GetReview(ctx context.Context, space uuid.UUID, number uint64) (*types.Review, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rev, ok := d.reviews[reviewKey(space, number)]
	if !ok {
		return nil, db.ErrReviewNotFound
	}
	return copyReview(rev), nil
}

func (d *DB) UpdateReview(ctx context.Context, rev *types.Review) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := reviewKey(rev.Space, rev.Number)
	if _, ok := d.reviews[k]; !ok {
		return db.ErrReviewNotFound
	}
	d.reviews[k] = copyReview(rev)
	return nil
}

func (d *DB) ListReviews(ctx context.Context, space uuid.UUID, status types.ReviewStatus) ([]*types.Review, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.Review
	for _, r := range d.reviews {
		if r.Space != space {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		result = append(result, copyReview(r))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Number > result[j].Number
	})
	return result, nil
}

func (d *DB) AddComment(ctx context.Context, c *types.ReviewComment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixNano()
	}
	cp := *c
	d.comments[scopedKey(c.Space, c.ID.String())] = &cp
	return nil
}

func (d *DB) GetComment(ctx context.Context, space, id uuid.UUID) (*types.ReviewComment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.comments[scopedKey(space, id.String())]
	if !ok {
		return nil, db.ErrCommentNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *DB) ResolveComment(ctx context.Context, space, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.comments[scopedKey(space, id.String())]
	if !ok {
		return db.ErrCommentNotFound
	}
	c.Resolved = true
	return nil
}

func (d *DB) ListComments(ctx context.Context, space uuid.UUID, review uint64) ([]*types.ReviewComment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.ReviewComment
	for _, c := range d.comments {
		if c.Space == space && c.Review == review {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

func (d *DB) AddApproval(ctx context.Context, a *types.ReviewApproval) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := reviewKey(a.Space, a.Review)
	if _, ok := d.reviews[k]; !ok {
		return db.ErrReviewNotFound
	}
	if a.ApprovedAt == 0 {
		a.ApprovedAt = time.Now().UnixNano()
	}
	if d.approvals[k] == nil {
		d.approvals[k] = make(map[string]*types.ReviewApproval)
	}
	cp := *a
	d.approvals[k][a.Reviewer] = &cp
	return nil
}

func (d *DB) ListApprovals(ctx context.Context, space uuid.UUID, review uint64) ([]*types.ReviewApproval, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.ReviewApproval
	for _, a := range d.approvals[reviewKey(space, review)] {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ApprovedAt < result[j].ApprovedAt
	})
	return result, nil
}
