// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// ============================================================================
// Space Operations
// ============================================================================

func (d *DB) CreateSpace(ctx context.Context, space *types.Space) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.spaceNames[space.Name]; ok {
		return db.ErrSpaceExists
	}
	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	if space.CreatedAt == 0 {
		space.CreatedAt = time.Now().UnixNano()
	}
	cp := *space
	d.spaces[space.ID] = &cp
	d.spaceNames[space.Name] = space.ID
	return nil
}

func (d *DB) GetSpace(ctx context.Context, id uuid.UUID) (*types.Space, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	space, ok := d.spaces[id]
	if !ok {
		return nil, db.ErrSpaceNotFound
	}
	cp := *space
	return &cp, nil
}

func (d *DB) GetSpaceByName(ctx context.Context, name string) (*types.Space, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.spaceNames[name]
	if !ok {
		return nil, db.ErrSpaceNotFound
	}
	cp := *d.spaces[id]
	return &cp, nil
}

// ============================================================================
// Branch Operations
// ============================================================================

func copyBranch(b *types.Branch) *types.Branch {
	cp := *b
	if b.Head != nil {
		head := *b.Head
		cp.Head = &head
	}
	return &cp
}

func (d *DB) CreateBranch(ctx context.Context, branch *types.Branch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := scopedKey(branch.Space, branch.Name)
	if _, ok := d.branches[k]; ok {
		return db.ErrBranchExists
	}
	if branch.CreatedAt == 0 {
		branch.CreatedAt = time.Now().UnixNano()
	}
	d.branches[k] = copyBranch(branch)
	return nil
}

func (d *DB) GetBranch(ctx context.Context, space uuid.UUID, name string) (*types.Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	branch, ok := d.branches[scopedKey(space, name)]
	if !ok {
		return nil, db.ErrBranchNotFound
	}
	return copyBranch(branch), nil
}

func (d *DB) ListBranches(ctx context.Context, space uuid.UUID) ([]*types.Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.Branch
	for _, branch := range d.branches {
		if branch.Space == space {
			result = append(result, copyBranch(branch))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (d *DB) UpdateBranchHead(ctx context.Context, space uuid.UUID, name string, from, to *uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	branch, ok := d.branches[scopedKey(space, name)]
	if !ok {
		return db.ErrBranchNotFound
	}
	switch {
	case from == nil && branch.Head != nil:
		return db.ErrHeadMoved
	case from != nil && (branch.Head == nil || *branch.Head != *from):
		return db.ErrHeadMoved
	}
	if to == nil {
		branch.Head = nil
		return nil
	}
	head := *to
	branch.Head = &head
	return nil
}

func (d *DB) SetBranchProtection(ctx context.Context, space uuid.UUID, name string, protected bool, rules types.ProtectionRules) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	branch, ok := d.branches[scopedKey(space, name)]
	if !ok {
		return db.ErrBranchNotFound
	}
	branch.Protected = protected
	branch.Protection = rules
	return nil
}

func (d *DB) DeleteBranch(ctx context.Context, space uuid.UUID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := scopedKey(space, name)
	if _, ok := d.branches[k]; !ok {
		return db.ErrBranchNotFound
	}
	delete(d.branches, k)
	return nil
}

// ============================================================================
// Snapshot Operations
// ============================================================================

func (d *DB) PutSnapshot(ctx context.Context, snap *types.Snapshot, entries []types.TreeEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixNano()
	}
	cp := *snap
	cp.Parents = append([]uuid.UUID(nil), snap.Parents...)
	d.snapshots[scopedKey(snap.Space, snap.ID.String())] = &cp

	tree := make(types.Tree, len(entries))
	for _, e := range entries {
		e.Snapshot = snap.ID
		tree[e.Path] = e
	}
	d.trees[scopedKey(snap.Space, snap.ID.String())] = tree
	return nil
}

func (d *DB) GetSnapshot(ctx context.Context, space, id uuid.UUID) (*types.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap, ok := d.snapshots[scopedKey(space, id.String())]
	if !ok {
		return nil, db.ErrSnapshotNotFound
	}
	cp := *snap
	cp.Parents = append([]uuid.UUID(nil), snap.Parents...)
	return &cp, nil
}

func (d *DB) GetTree(ctx context.Context, space, snapshot uuid.UUID) (types.Tree, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tree, ok := d.trees[scopedKey(space, snapshot.String())]
	if !ok {
		return nil, db.ErrSnapshotNotFound
	}
	return tree.Clone(), nil
}
