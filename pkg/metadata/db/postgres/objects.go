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
// Object Operations
// ============================================================================

func (s *queries) AppendObjectVersion(ctx context.Context, obj *types.ObjectVersion, expected uint64, enforce bool) error {
	var current int64
	err := s.q.QueryRowContext(ctx, `
		SELECT version FROM object_versions
		WHERE space = $1 AND bucket = $2 AND key = $3 AND is_current
		FOR UPDATE
	`, obj.Space, obj.Bucket, obj.Key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read current object version: %w", err)
	}

	if enforce && uint64(current) != expected {
		return db.ErrVersionConflict
	}

	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	if obj.CreatedAt == 0 {
		obj.CreatedAt = time.Now().UnixNano()
	}
	obj.Version = uint64(current) + 1
	obj.IsCurrent = true

	manifest, err := jsonValue(obj.Manifest)
	if err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `
		UPDATE object_versions SET is_current = FALSE
		WHERE space = $1 AND bucket = $2 AND key = $3 AND is_current
	`, obj.Space, obj.Bucket, obj.Key); err != nil {
		return fmt.Errorf("clear current flag: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO object_versions
			(space, bucket, key, version, id, size, etag, mime_type, manifest, is_current, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, 0)
	`, obj.Space, obj.Bucket, obj.Key, int64(obj.Version), obj.ID, int64(obj.Size),
		obj.ETag, obj.MimeType, manifest, obj.CreatedAt); err != nil {
		return fmt.Errorf("insert object version: %w", err)
	}
	return nil
}

func (s *queries) scanObjectVersion(row *sql.Row) (*types.ObjectVersion, error) {
	obj := &types.ObjectVersion{}
	var version, size int64
	var manifest []byte
	err := row.Scan(&obj.Space, &obj.Bucket, &obj.Key, &version, &obj.ID, &size,
		&obj.ETag, &obj.MimeType, &manifest, &obj.IsCurrent, &obj.CreatedAt, &obj.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan object version: %w", err)
	}
	obj.Version = uint64(version)
	obj.Size = uint64(size)
	if err := jsonScan(manifest, &obj.Manifest); err != nil {
		return nil, err
	}
	return obj, nil
}

const objectColumns = `space, bucket, key, version, id, size, etag, mime_type, manifest, is_current, created_at, deleted_at`

func (s *queries) GetCurrentObject(ctx context.Context, space uuid.UUID, bucket, key string) (*types.ObjectVersion, error) {
	return s.scanObjectVersion(s.q.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM object_versions
		WHERE space = $1 AND bucket = $2 AND key = $3 AND is_current
	`, space, bucket, key))
}

func (s *queries) GetObjectVersion(ctx context.Context, space uuid.UUID, bucket, key string, version uint64) (*types.ObjectVersion, error) {
	return s.scanObjectVersion(s.q.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM object_versions
		WHERE space = $1 AND bucket = $2 AND key = $3 AND version = $4
	`, space, bucket, key, int64(version)))
}

func (s *queries) MarkObjectDeleted(ctx context.Context, space uuid.UUID, bucket, key string, deletedAt int64) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE object_versions SET deleted_at = $1
		WHERE space = $2 AND bucket = $3 AND key = $4 AND is_current
	`, deletedAt, space, bucket, key)
	if err != nil {
		return fmt.Errorf("mark object deleted: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrObjectNotFound
	}
	return nil
}

func (s *queries) ListObjects(ctx context.Context, space uuid.UUID, bucket, prefix string, limit int) ([]*types.ObjectVersion, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+objectColumns+` FROM object_versions
		WHERE space = $1 AND bucket = $2 AND is_current AND deleted_at = 0
		  AND key LIKE $3 || '%'
		ORDER BY key
		LIMIT $4
	`, space, bucket, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	return s.collectObjectVersions(rows)
}

func (s *queries) ListTombstonedVersions(ctx context.Context, olderThan int64, limit int) ([]*types.ObjectVersion, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+objectColumns+` FROM object_versions
		WHERE deleted_at > 0 AND deleted_at < $1
		ORDER BY deleted_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list tombstoned versions: %w", err)
	}
	defer rows.Close()
	return s.collectObjectVersions(rows)
}

func (s *queries) collectObjectVersions(rows *sql.Rows) ([]*types.ObjectVersion, error) {
	var objects []*types.ObjectVersion
	for rows.Next() {
		obj := &types.ObjectVersion{}
		var version, size int64
		var manifest []byte
		if err := rows.Scan(&obj.Space, &obj.Bucket, &obj.Key, &version, &obj.ID, &size,
			&obj.ETag, &obj.MimeType, &manifest, &obj.IsCurrent, &obj.CreatedAt, &obj.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan object version: %w", err)
		}
		obj.Version = uint64(version)
		obj.Size = uint64(size)
		if err := jsonScan(manifest, &obj.Manifest); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

func (s *queries) DeleteObjectVersion(ctx context.Context, space uuid.UUID, bucket, key string, version uint64) error {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM object_versions
		WHERE space = $1 AND bucket = $2 AND key = $3 AND version = $4
	`, space, bucket, key, int64(version))
	if err != nil {
		return fmt.Errorf("delete object version: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrObjectNotFound
	}
	return nil
}
