// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"
)

// ============================================================================
// Multipart Upload Operations
// ============================================================================

func (s *queries) CreateUpload(ctx context.Context, upload *types.Upload) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO multipart_uploads
			(upload_id, id, space, bucket, key, owner, mime_type, initiated, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, upload.UploadID, upload.ID, upload.Space, upload.Bucket, upload.Key,
		upload.Owner, upload.MimeType, upload.Initiated, upload.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

func (s *queries) GetUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	upload := &types.Upload{}
	err := s.q.QueryRowContext(ctx, `
		SELECT upload_id, id, space, bucket, key, owner, mime_type, initiated, expires_at
		FROM multipart_uploads
		WHERE upload_id = $1
	`, uploadID).Scan(&upload.UploadID, &upload.ID, &upload.Space, &upload.Bucket,
		&upload.Key, &upload.Owner, &upload.MimeType, &upload.Initiated, &upload.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return upload, nil
}

func (s *queries) DeleteUpload(ctx context.Context, uploadID string) error {
	// Parts cascade
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM multipart_uploads WHERE upload_id = $1
	`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func (s *queries) PutPart(ctx context.Context, part *types.UploadPart) error {
	manifest, err := jsonValue(part.Manifest)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO upload_parts (upload_id, part_number, id, size, etag, manifest, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (upload_id, part_number) DO UPDATE SET
			id = EXCLUDED.id,
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			manifest = EXCLUDED.manifest,
			uploaded_at = EXCLUDED.uploaded_at
	`, part.UploadID, part.PartNumber, part.ID, int64(part.Size), part.ETag, manifest, part.UploadedAt)
	if err != nil {
		return fmt.Errorf("put part: %w", err)
	}
	return nil
}

func (s *queries) ListParts(ctx context.Context, uploadID string) ([]*types.UploadPart, error) {
	// Distinguish a missing upload from one with no parts yet
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT upload_id, part_number, id, size, etag, manifest, uploaded_at
		FROM upload_parts
		WHERE upload_id = $1
		ORDER BY part_number
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var parts []*types.UploadPart
	for rows.Next() {
		part := &types.UploadPart{}
		var size int64
		var manifest []byte
		if err := rows.Scan(&part.UploadID, &part.PartNumber, &part.ID, &size,
			&part.ETag, &manifest, &part.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		part.Size = uint64(size)
		if err := jsonScan(manifest, &part.Manifest); err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

func (s *queries) ListExpiredUploads(ctx context.Context, now int64, limit int) ([]*types.Upload, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT upload_id, id, space, bucket, key, owner, mime_type, initiated, expires_at
		FROM multipart_uploads
		WHERE expires_at > 0 AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*types.Upload
	for rows.Next() {
		upload := &types.Upload{}
		if err := rows.Scan(&upload.UploadID, &upload.ID, &upload.Space, &upload.Bucket,
			&upload.Key, &upload.Owner, &upload.MimeType, &upload.Initiated, &upload.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}
