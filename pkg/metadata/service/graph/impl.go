// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/events"
	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

const opCommit = "graph.commit"

// serviceImpl implements the Service interface
type serviceImpl struct {
	db      db.DB
	chunks  chunk.Service
	emitter *events.Emitter
	access  access.Authorizer
}

// Config holds configuration for the graph service
type Config struct {
	DB     db.DB
	Chunks chunk.Service

	// Emitter publishes FileVersionCreated events on commit. Optional.
	Emitter *events.Emitter

	// Access gates operations on the calling actor. Optional; nil means
	// open access (trusted in-process callers).
	Access access.Authorizer
}

// NewService creates a new graph service
func NewService(cfg Config) (Service, error) {
	if cfg.DB == nil {
		return nil, service.NewValidationError("DB is required")
	}
	if cfg.Chunks == nil {
		return nil, service.NewValidationError("Chunks is required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter()
	}
	return &serviceImpl{db: cfg.DB, chunks: cfg.Chunks, emitter: emitter, access: cfg.Access}, nil
}

// ============================================================================
// Spaces
// ============================================================================

func (s *serviceImpl) CreateSpace(ctx context.Context, req *CreateSpaceRequest) (*CreateSpaceResult, error) {
	if req.Name == "" {
		return nil, service.NewValidationError("space name is required")
	}
	if req.Owner == "" {
		return nil, service.NewValidationError("owner is required")
	}

	space := &types.Space{Name: req.Name, Owner: req.Owner}
	if err := s.db.CreateSpace(ctx, space); err != nil {
		if errors.Is(err, db.ErrSpaceExists) {
			return nil, service.NewConflictError(fmt.Sprintf("space %q already exists", req.Name))
		}
		return nil, service.NewInternalError(err)
	}

	main := &types.Branch{Space: space.ID, Name: DefaultBranch}
	if err := s.db.CreateBranch(ctx, main); err != nil {
		return nil, service.NewInternalError(err)
	}

	owner := &types.Member{
		Space:     space.ID,
		Principal: types.Principal{Type: types.PrincipalUser, ID: req.Owner},
		Role:      access.RoleOwner,
	}
	if err := s.db.PutMember(ctx, owner); err != nil {
		return nil, service.NewInternalError(err)
	}

	logger.Info().
		Str("space", space.ID.String()).
		Str("name", req.Name).
		Str("owner", req.Owner).
		Msg("space created")
	return &CreateSpaceResult{Space: space, Main: main}, nil
}

func (s *serviceImpl) GetSpace(ctx context.Context, name string) (*types.Space, error) {
	space, err := s.db.GetSpaceByName(ctx, name)
	if err != nil {
		if errors.Is(err, db.ErrSpaceNotFound) {
			// With enforcement on, a missing space is indistinguishable
			// from a denied one.
			if s.access != nil {
				return nil, service.NewPermissionDeniedError()
			}
			return nil, service.NewNotFoundError(fmt.Sprintf("space %q", name))
		}
		return nil, service.NewInternalError(err)
	}
	if err := service.Authorize(ctx, s.access, space.ID, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	return space, nil
}

// ============================================================================
// Branches
// ============================================================================

func (s *serviceImpl) CreateBranch(ctx context.Context, req *CreateBranchRequest) (*types.Branch, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if req.Name == "" || strings.ContainsAny(req.Name, " \t\n") {
		return nil, service.NewValidationError("branch name must be non-empty without whitespace")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapManageBranches, req.Name, ""); err != nil {
		return nil, err
	}

	var head *uuid.UUID
	switch {
	case req.FromSnapshot != uuid.Nil:
		if _, err := s.db.GetSnapshot(ctx, req.Space, req.FromSnapshot); err != nil {
			if errors.Is(err, db.ErrSnapshotNotFound) {
				return nil, service.NewNotFoundError(fmt.Sprintf("snapshot %s", req.FromSnapshot))
			}
			return nil, service.NewInternalError(err)
		}
		id := req.FromSnapshot
		head = &id
	case req.FromBranch != "":
		from, err := s.GetBranch(ctx, req.Space, req.FromBranch)
		if err != nil {
			return nil, err
		}
		if from.Head != nil {
			id := *from.Head
			head = &id
		}
	}

	branch := &types.Branch{Space: req.Space, Name: req.Name, Head: head}
	if err := s.db.CreateBranch(ctx, branch); err != nil {
		if errors.Is(err, db.ErrBranchExists) {
			return nil, service.NewConflictError(fmt.Sprintf("branch %q already exists", req.Name))
		}
		return nil, service.NewInternalError(err)
	}
	return branch, nil
}

func (s *serviceImpl) GetBranch(ctx context.Context, space uuid.UUID, name string) (*types.Branch, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, name, ""); err != nil {
		return nil, err
	}
	branch, err := s.db.GetBranch(ctx, space, name)
	if err != nil {
		if errors.Is(err, db.ErrBranchNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("branch %q", name))
		}
		return nil, service.NewInternalError(err)
	}
	return branch, nil
}

func (s *serviceImpl) ListBranches(ctx context.Context, space uuid.UUID) ([]*types.Branch, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	branches, err := s.db.ListBranches(ctx, space)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	return branches, nil
}

func (s *serviceImpl) DeleteBranch(ctx context.Context, space uuid.UUID, name string) error {
	if err := service.Authorize(ctx, s.access, space, types.CapManageBranches, name, ""); err != nil {
		return err
	}
	branch, err := s.GetBranch(ctx, space, name)
	if err != nil {
		return err
	}
	if branch.Protected {
		return service.NewPermissionDeniedError()
	}
	if err := s.db.DeleteBranch(ctx, space, name); err != nil {
		if errors.Is(err, db.ErrBranchNotFound) {
			return service.NewNotFoundError(fmt.Sprintf("branch %q", name))
		}
		return service.NewInternalError(err)
	}
	logger.Info().Str("space", space.String()).Str("branch", name).Msg("branch deleted")
	return nil
}

func (s *serviceImpl) SetBranchProtection(ctx context.Context, space uuid.UUID, name string, protected bool, rules types.ProtectionRules) error {
	if err := service.Authorize(ctx, s.access, space, types.CapManageBranches, name, ""); err != nil {
		return err
	}
	if err := s.db.SetBranchProtection(ctx, space, name, protected, rules); err != nil {
		if errors.Is(err, db.ErrBranchNotFound) {
			return service.NewNotFoundError(fmt.Sprintf("branch %q", name))
		}
		return service.NewInternalError(err)
	}
	return nil
}

// ============================================================================
// Files
// ============================================================================

func (s *serviceImpl) PutFile(ctx context.Context, req *PutFileRequest) (*types.FileVersion, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, "", ""); err != nil {
		return nil, err
	}

	stored, err := s.chunks.Put(ctx, &chunk.PutRequest{Space: req.Space, Data: req.Data})
	if err != nil {
		return nil, err
	}

	// Content reuse: one file version per content hash per space
	existing, err := s.db.GetFileVersionByHash(ctx, req.Space, stored.ContentHash)
	if err == nil {
		if derefErr := s.chunks.Deref(ctx, req.Space, stored.Manifest); derefErr != nil {
			logger.Error().Err(derefErr).Str("space", req.Space.String()).Msg("release duplicate content references")
		}
		return existing, nil
	}
	if !errors.Is(err, db.ErrFileVersionNotFound) {
		return nil, service.NewInternalError(err)
	}

	fv := &types.FileVersion{
		Space:       req.Space,
		ContentHash: stored.ContentHash,
		Size:        stored.Size,
		MimeType:    req.MimeType,
		Manifest:    stored.Manifest,
	}
	if err := s.db.PutFileVersion(ctx, fv); err != nil {
		return nil, service.NewInternalError(err)
	}
	return fv, nil
}

func (s *serviceImpl) ReadFile(ctx context.Context, req *ReadFileRequest) (*ReadFileResult, error) {
	if err := service.Authorize(ctx, s.access, req.Space, types.CapRead, "", req.Path); err != nil {
		return nil, err
	}
	tree, err := s.ReadTree(ctx, req.Space, req.Snapshot)
	if err != nil {
		return nil, err
	}
	entry, ok := tree[req.Path]
	if !ok {
		return nil, service.NewNotFoundError(fmt.Sprintf("path %q", req.Path))
	}
	if entry.Type != types.EntryFile {
		return nil, service.NewValidationError(fmt.Sprintf("path %q is not a file", req.Path))
	}

	fv, err := s.db.GetFileVersion(ctx, req.Space, entry.FileVersion)
	if err != nil {
		if errors.Is(err, db.ErrFileVersionNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("file version %s", entry.FileVersion))
		}
		return nil, service.NewInternalError(err)
	}

	assembled, err := s.chunks.Get(ctx, &chunk.GetRequest{Space: req.Space, Manifest: fv.Manifest})
	if err != nil {
		return nil, err
	}
	return &ReadFileResult{Entry: entry, FileVersion: fv, Data: assembled.Data}, nil
}

// ============================================================================
// Commits
// ============================================================================

func (s *serviceImpl) Commit(ctx context.Context, req *CommitRequest) (*CommitResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if req.Branch == "" {
		return nil, service.NewValidationError("branch is required")
	}
	if len(req.Changes) == 0 {
		return nil, service.NewValidationError("a commit needs at least one change")
	}
	// Writes are checked per path so path-scoped grants hold for commits
	for _, change := range req.Changes {
		if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, req.Branch, change.Path); err != nil {
			return nil, err
		}
	}

	if req.IdempotencyKey != "" {
		if recorded, err := s.db.GetIdempotentResult(ctx, req.Space, opCommit, req.IdempotencyKey); err == nil {
			var result CommitResult
			if err := json.Unmarshal(recorded, &result); err != nil {
				return nil, service.NewInternalError(fmt.Errorf("decode recorded result: %w", err))
			}
			return &result, nil
		} else if !errors.Is(err, db.ErrIdempotencyMiss) {
			return nil, service.NewInternalError(err)
		}
	}

	branch, err := s.GetBranch(ctx, req.Space, req.Branch)
	if err != nil {
		return nil, err
	}
	if req.EnforceHead && !headEqual(req.ExpectedHead, branch.Head) {
		return nil, service.NewConflictError(fmt.Sprintf("branch %q head moved", req.Branch))
	}

	base := types.Tree{}
	if branch.Head != nil {
		base, err = s.ReadTree(ctx, req.Space, *branch.Head)
		if err != nil {
			return nil, err
		}
	}

	tree, err := s.applyChanges(ctx, req.Space, base, req.Changes)
	if err != nil {
		return nil, err
	}

	snap := &types.Snapshot{
		ID:       uuid.New(),
		Space:    req.Space,
		Branch:   req.Branch,
		TreeHash: tree.Hash(),
		Author:   req.Author,
		Message:  req.Message,
	}
	if branch.Head != nil {
		snap.Parents = []uuid.UUID{*branch.Head}
	}

	entries := make([]types.TreeEntry, 0, len(tree))
	for _, e := range tree {
		entries = append(entries, e)
	}

	err = s.db.WithTx(ctx, func(tx db.TxStore) error {
		if err := tx.PutSnapshot(ctx, snap, entries); err != nil {
			return err
		}
		return tx.UpdateBranchHead(ctx, req.Space, req.Branch, branch.Head, &snap.ID)
	})
	if err != nil {
		if errors.Is(err, db.ErrHeadMoved) {
			return nil, service.NewConflictError(fmt.Sprintf("branch %q head moved", req.Branch))
		}
		return nil, service.NewInternalError(err)
	}

	for _, change := range req.Changes {
		if change.Op != types.ChangeUpsert || change.Type != types.EntryFile {
			continue
		}
		ev := events.FileVersionCreated{
			Space:       req.Space,
			Snapshot:    snap.ID,
			Path:        change.Path,
			ContentHash: tree[change.Path].ContentHash,
		}
		if fv, err := s.db.GetFileVersion(ctx, req.Space, change.FileVersion); err == nil {
			ev.Size = fv.Size
		}
		s.emitter.Emit(ctx, ev)
	}

	result := &CommitResult{Snapshot: snap}
	if req.IdempotencyKey != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if err := s.db.PutIdempotentResult(ctx, req.Space, opCommit, req.IdempotencyKey, encoded); err != nil {
			logger.Warn().Err(err).Str("branch", req.Branch).Msg("record idempotent result failed")
		}
	}

	logger.Debug().
		Str("space", req.Space.String()).
		Str("branch", req.Branch).
		Str("snapshot", snap.ID.String()).
		Int("changes", len(req.Changes)).
		Msg("commit applied")
	return result, nil
}

// applyChanges overlays a change set onto a base tree, returning the new
// tree. The result is a pure function of base and changes.
func (s *serviceImpl) applyChanges(ctx context.Context, space uuid.UUID, base types.Tree, changes []types.PathChange) (types.Tree, error) {
	tree := base.Clone()
	for _, change := range changes {
		if change.Path == "" || strings.HasPrefix(change.Path, "/") {
			return nil, service.NewValidationError(fmt.Sprintf("invalid path %q", change.Path))
		}
		switch change.Op {
		case types.ChangeUpsert:
			entry := types.TreeEntry{
				Path:        change.Path,
				Type:        change.Type,
				FileVersion: change.FileVersion,
				ContentHash: change.ContentHash,
				Mode:        change.Mode,
			}
			if entry.Type == "" {
				entry.Type = types.EntryFile
			}
			if entry.Type == types.EntryFile {
				if entry.FileVersion == uuid.Nil {
					return nil, service.NewValidationError(fmt.Sprintf("upsert of %q needs a file version", change.Path))
				}
				if entry.ContentHash == "" {
					fv, err := s.db.GetFileVersion(ctx, space, entry.FileVersion)
					if err != nil {
						if errors.Is(err, db.ErrFileVersionNotFound) {
							return nil, service.NewNotFoundError(fmt.Sprintf("file version %s", entry.FileVersion))
						}
						return nil, service.NewInternalError(err)
					}
					entry.ContentHash = fv.ContentHash
				}
			}
			tree[change.Path] = entry
		case types.ChangeDelete:
			if _, ok := tree[change.Path]; !ok {
				return nil, service.NewNotFoundError(fmt.Sprintf("path %q", change.Path))
			}
			delete(tree, change.Path)
		default:
			return nil, service.NewValidationError(fmt.Sprintf("unknown change op %q", change.Op))
		}
	}
	return tree, nil
}

func headEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ============================================================================
// Snapshots
// ============================================================================

func (s *serviceImpl) GetSnapshot(ctx context.Context, space, id uuid.UUID) (*types.Snapshot, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	snap, err := s.db.GetSnapshot(ctx, space, id)
	if err != nil {
		if errors.Is(err, db.ErrSnapshotNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("snapshot %s", id))
		}
		return nil, service.NewInternalError(err)
	}
	return snap, nil
}

func (s *serviceImpl) ReadTree(ctx context.Context, space, snapshot uuid.UUID) (types.Tree, error) {
	if err := service.Authorize(ctx, s.access, space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	tree, err := s.db.GetTree(ctx, space, snapshot)
	if err != nil {
		if errors.Is(err, db.ErrSnapshotNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("snapshot %s", snapshot))
		}
		return nil, service.NewInternalError(err)
	}
	return tree, nil
}

func (s *serviceImpl) Diff(ctx context.Context, space uuid.UUID, from, to *uuid.UUID) ([]types.PathChange, error) {
	fromTree := types.Tree{}
	if from != nil {
		var err error
		fromTree, err = s.ReadTree(ctx, space, *from)
		if err != nil {
			return nil, err
		}
	}
	toTree := types.Tree{}
	if to != nil {
		var err error
		toTree, err = s.ReadTree(ctx, space, *to)
		if err != nil {
			return nil, err
		}
	}
	return DiffTrees(fromTree, toTree), nil
}

// DiffTrees computes the path-level changes turning from into to, sorted by
// path.
func DiffTrees(from, to types.Tree) []types.PathChange {
	var changes []types.PathChange
	for path, entry := range to {
		old, ok := from[path]
		if ok && old.ContentHash == entry.ContentHash && old.Mode == entry.Mode && old.Type == entry.Type {
			continue
		}
		changes = append(changes, types.PathChange{
			Op:          types.ChangeUpsert,
			Path:        path,
			Type:        entry.Type,
			FileVersion: entry.FileVersion,
			ContentHash: entry.ContentHash,
			Mode:        entry.Mode,
		})
	}
	for path := range from {
		if _, ok := to[path]; !ok {
			changes = append(changes, types.PathChange{Op: types.ChangeDelete, Path: path})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}
