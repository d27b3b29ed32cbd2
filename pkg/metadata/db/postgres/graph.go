// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// ============================================================================
// Space Operations
// ============================================================================

func (s *queries) CreateSpace(ctx context.Context, space *types.Space) error {
	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	if space.CreatedAt == 0 {
		space.CreatedAt = time.Now().UnixNano()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO spaces (id, name, owner, created_at)
		VALUES ($1, $2, $3, $4)
	`, space.ID, space.Name, space.Owner, space.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return db.ErrSpaceExists
		}
		return fmt.Errorf("create space: %w", err)
	}
	return nil
}

func (s *queries) GetSpace(ctx context.Context, id uuid.UUID) (*types.Space, error) {
	space := &types.Space{}
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, owner, created_at FROM spaces WHERE id = $1
	`, id).Scan(&space.ID, &space.Name, &space.Owner, &space.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrSpaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	return space, nil
}

func (s *queries) GetSpaceByName(ctx context.Context, name string) (*types.Space, error) {
	space := &types.Space{}
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, owner, created_at FROM spaces WHERE name = $1
	`, name).Scan(&space.ID, &space.Name, &space.Owner, &space.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrSpaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get space by name: %w", err)
	}
	return space, nil
}

// ============================================================================
// Branch Operations
// ============================================================================

func (s *queries) CreateBranch(ctx context.Context, branch *types.Branch) error {
	if branch.CreatedAt == 0 {
		branch.CreatedAt = time.Now().UnixNano()
	}
	protection, err := jsonValue(branch.Protection)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO branches (space, name, head, protected, protection, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, branch.Space, branch.Name, nullUUID(branch.Head), branch.Protected, protection, branch.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return db.ErrBranchExists
		}
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

func scanBranch(scan func(dest ...any) error) (*types.Branch, error) {
	branch := &types.Branch{}
	var head sql.NullString
	var protection []byte
	if err := scan(&branch.Space, &branch.Name, &head, &branch.Protected, &protection, &branch.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if branch.Head, err = scanNullUUID(head); err != nil {
		return nil, err
	}
	if err := jsonScan(protection, &branch.Protection); err != nil {
		return nil, err
	}
	return branch, nil
}

func (s *queries) GetBranch(ctx context.Context, space uuid.UUID, name string) (*types.Branch, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT space, name, head, protected, protection, created_at
		FROM branches
		WHERE space = $1 AND name = $2
	`, space, name)
	branch, err := scanBranch(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrBranchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return branch, nil
}

func (s *queries) ListBranches(ctx context.Context, space uuid.UUID) ([]*types.Branch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT space, name, head, protected, protection, created_at
		FROM branches
		WHERE space = $1
		ORDER BY name
	`, space)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []*types.Branch
	for rows.Next() {
		branch, err := scanBranch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, branch)
	}
	return branches, rows.Err()
}

func (s *queries) UpdateBranchHead(ctx context.Context, space uuid.UUID, name string, from, to *uuid.UUID) error {
	var result sql.Result
	var err error
	if from == nil {
		result, err = s.q.ExecContext(ctx, `
			UPDATE branches SET head = $1
			WHERE space = $2 AND name = $3 AND head IS NULL
		`, nullUUID(to), space, name)
	} else {
		result, err = s.q.ExecContext(ctx, `
			UPDATE branches SET head = $1
			WHERE space = $2 AND name = $3 AND head = $4
		`, nullUUID(to), space, name, *from)
	}
	if err != nil {
		return fmt.Errorf("update branch head: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a missing branch from a lost race
		if _, err := s.GetBranch(ctx, space, name); err != nil {
			return err
		}
		return db.ErrHeadMoved
	}
	return nil
}

func (s *queries) SetBranchProtection(ctx context.Context, space uuid.UUID, name string, protected bool, rules types.ProtectionRules) error {
	protection, err := jsonValue(rules)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE branches SET protected = $1, protection = $2
		WHERE space = $3 AND name = $4
	`, protected, protection, space, name)
	if err != nil {
		return fmt.Errorf("set branch protection: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrBranchNotFound
	}
	return nil
}

func (s *queries) DeleteBranch(ctx context.Context, space uuid.UUID, name string) error {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM branches WHERE space = $1 AND name = $2
	`, space, name)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrBranchNotFound
	}
	return nil
}

// ============================================================================
// Snapshot Operations
// ============================================================================

func (s *queries) PutSnapshot(ctx context.Context, snap *types.Snapshot, entries []types.TreeEntry) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixNano()
	}
	parents, err := jsonValue(snap.Parents)
	if err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO snapshots (space, id, branch, parents, tree_hash, author, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snap.Space, snap.ID, snap.Branch, parents, snap.TreeHash, snap.Author, snap.Message, snap.CreatedAt); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}

	for _, e := range entries {
		var fv any
		if e.FileVersion != uuid.Nil {
			fv = e.FileVersion
		}
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO tree_entries (space, snapshot, path, type, file_version, content_hash, mode)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, snap.Space, snap.ID, e.Path, string(e.Type), fv, e.ContentHash, int64(e.Mode)); err != nil {
			return fmt.Errorf("put tree entry %q: %w", e.Path, err)
		}
	}
	return nil
}

func (s *queries) GetSnapshot(ctx context.Context, space, id uuid.UUID) (*types.Snapshot, error) {
	snap := &types.Snapshot{}
	var parents []byte
	err := s.q.QueryRowContext(ctx, `
		SELECT space, id, branch, parents, tree_hash, author, message, created_at
		FROM snapshots
		WHERE space = $1 AND id = $2
	`, space, id).Scan(&snap.Space, &snap.ID, &snap.Branch, &parents,
		&snap.TreeHash, &snap.Author, &snap.Message, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := jsonScan(parents, &snap.Parents); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *queries) GetTree(ctx context.Context, space, snapshot uuid.UUID) (types.Tree, error) {
	// The snapshot row is the existence authority; an empty tree is valid
	if _, err := s.GetSnapshot(ctx, space, snapshot); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT path, type, file_version, content_hash, mode
		FROM tree_entries
		WHERE space = $1 AND snapshot = $2
	`, space, snapshot)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	defer rows.Close()

	tree := make(types.Tree)
	for rows.Next() {
		e := types.TreeEntry{Snapshot: snapshot}
		var entryType string
		var fv sql.NullString
		var mode int64
		if err := rows.Scan(&e.Path, &entryType, &fv, &e.ContentHash, &mode); err != nil {
			return nil, fmt.Errorf("scan tree entry: %w", err)
		}
		e.Type = types.EntryType(entryType)
		e.Mode = uint32(mode)
		if id, err := scanNullUUID(fv); err != nil {
			return nil, err
		} else if id != nil {
			e.FileVersion = *id
		}
		tree[e.Path] = e
	}
	return tree, rows.Err()
}
