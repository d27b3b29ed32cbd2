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
// Chunk Registry Operations
// ============================================================================

func (s *queries) IncrementChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID, size uint64) error {
	now := time.Now().UnixNano()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO chunk_registry (space, chunk_id, size, ref_count, zero_since, created_at)
		VALUES ($1, $2, $3, 1, 0, $4)
		ON CONFLICT (space, chunk_id) DO UPDATE SET
			ref_count = chunk_registry.ref_count + 1,
			zero_since = 0
	`, space, id.String(), int64(size), now)
	if err != nil {
		return fmt.Errorf("increment chunk ref count: %w", err)
	}
	return nil
}

func (s *queries) DecrementChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	now := time.Now().UnixNano()
	result, err := s.q.ExecContext(ctx, `
		UPDATE chunk_registry
		SET ref_count = ref_count - 1,
		    zero_since = CASE WHEN ref_count = 1 THEN $1 ELSE zero_since END
		WHERE space = $2 AND chunk_id = $3 AND ref_count > 0
	`, now, space, id.String())
	if err != nil {
		return fmt.Errorf("decrement chunk ref count: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrChunkNotFound
	}
	return nil
}

func (s *queries) GetChunk(ctx context.Context, space uuid.UUID, id types.ChunkID) (*types.Chunk, error) {
	chunk := &types.Chunk{Space: space, ID: id}
	var size int64
	err := s.q.QueryRowContext(ctx, `
		SELECT size, ref_count, zero_since, created_at
		FROM chunk_registry
		WHERE space = $1 AND chunk_id = $2
	`, space, id.String()).Scan(&size, &chunk.RefCount, &chunk.ZeroSince, &chunk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	chunk.Size = uint64(size)
	return chunk, nil
}

func (s *queries) GetChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID) (int64, error) {
	var refCount int64
	err := s.q.QueryRowContext(ctx, `
		SELECT ref_count FROM chunk_registry WHERE space = $1 AND chunk_id = $2
	`, space, id.String()).Scan(&refCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, db.ErrChunkNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get chunk ref count: %w", err)
	}
	return refCount, nil
}

func (s *queries) GetZeroRefChunks(ctx context.Context, olderThan time.Time, limit int) ([]*types.Chunk, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT space, chunk_id, size, ref_count, zero_since, created_at
		FROM chunk_registry
		WHERE ref_count = 0 AND zero_since > 0 AND zero_since < $1
		ORDER BY zero_since
		LIMIT $2
	`, olderThan.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("get zero ref chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*types.Chunk
	for rows.Next() {
		chunk := &types.Chunk{}
		var chunkID string
		var size int64
		if err := rows.Scan(&chunk.Space, &chunkID, &size, &chunk.RefCount, &chunk.ZeroSince, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan zero ref chunk: %w", err)
		}
		chunk.ID = types.ChunkID(chunkID)
		chunk.Size = uint64(size)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *queries) DeleteChunk(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM chunk_registry WHERE space = $1 AND chunk_id = $2
	`, space, id.String())
	if err != nil {
		return fmt.Errorf("delete chunk: %w", err)
	}
	return nil
}

// ============================================================================
// File Version Operations
// ============================================================================

func (s *queries) PutFileVersion(ctx context.Context, fv *types.FileVersion) error {
	if fv.ID == uuid.Nil {
		fv.ID = uuid.New()
	}
	if fv.CreatedAt == 0 {
		fv.CreatedAt = time.Now().UnixNano()
	}
	manifest, err := jsonValue(fv.Manifest)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO file_versions (space, id, content_hash, size, mime_type, manifest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, fv.Space, fv.ID, fv.ContentHash, int64(fv.Size), fv.MimeType, manifest, fv.CreatedAt)
	if err != nil {
		return fmt.Errorf("put file version: %w", err)
	}
	return nil
}

func (s *queries) scanFileVersion(row *sql.Row) (*types.FileVersion, error) {
	fv := &types.FileVersion{}
	var size int64
	var manifest []byte
	err := row.Scan(&fv.Space, &fv.ID, &fv.ContentHash, &size, &fv.MimeType, &manifest, &fv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrFileVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file version: %w", err)
	}
	fv.Size = uint64(size)
	if err := jsonScan(manifest, &fv.Manifest); err != nil {
		return nil, err
	}
	return fv, nil
}

func (s *queries) GetFileVersion(ctx context.Context, space, id uuid.UUID) (*types.FileVersion, error) {
	return s.scanFileVersion(s.q.QueryRowContext(ctx, `
		SELECT space, id, content_hash, size, mime_type, manifest, created_at
		FROM file_versions
		WHERE space = $1 AND id = $2
	`, space, id))
}

func (s *queries) GetFileVersionByHash(ctx context.Context, space uuid.UUID, contentHash string) (*types.FileVersion, error) {
	return s.scanFileVersion(s.q.QueryRowContext(ctx, `
		SELECT space, id, content_hash, size, mime_type, manifest, created_at
		FROM file_versions
		WHERE space = $1 AND content_hash = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, space, contentHash))
}
