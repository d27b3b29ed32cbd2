// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"

	"github.com/C-0711/Vaultclaw/pkg/logger"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chunk_registry (
		space      UUID   NOT NULL,
		chunk_id   TEXT   NOT NULL,
		size       BIGINT NOT NULL,
		ref_count  BIGINT NOT NULL DEFAULT 0,
		zero_since BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (space, chunk_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunk_registry_zero
		ON chunk_registry (zero_since) WHERE ref_count = 0`,

	`CREATE TABLE IF NOT EXISTS file_versions (
		space        UUID   NOT NULL,
		id           UUID   NOT NULL,
		content_hash TEXT   NOT NULL,
		size         BIGINT NOT NULL,
		mime_type    TEXT   NOT NULL DEFAULT '',
		manifest     JSONB  NOT NULL,
		created_at   BIGINT NOT NULL,
		PRIMARY KEY (space, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_versions_hash
		ON file_versions (space, content_hash)`,

	`CREATE TABLE IF NOT EXISTS object_versions (
		space      UUID    NOT NULL,
		bucket     TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		version    BIGINT  NOT NULL,
		id         UUID    NOT NULL,
		size       BIGINT  NOT NULL,
		etag       TEXT    NOT NULL DEFAULT '',
		mime_type  TEXT    NOT NULL DEFAULT '',
		manifest   JSONB   NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT  NOT NULL,
		deleted_at BIGINT  NOT NULL DEFAULT 0,
		PRIMARY KEY (space, bucket, key, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_object_versions_current
		ON object_versions (space, bucket, key) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS idx_object_versions_deleted
		ON object_versions (deleted_at) WHERE deleted_at > 0`,

	`CREATE TABLE IF NOT EXISTS multipart_uploads (
		upload_id  TEXT   PRIMARY KEY,
		id         UUID   NOT NULL,
		space      UUID   NOT NULL,
		bucket     TEXT   NOT NULL,
		key        TEXT   NOT NULL,
		owner      TEXT   NOT NULL DEFAULT '',
		mime_type  TEXT   NOT NULL DEFAULT '',
		initiated  BIGINT NOT NULL,
		expires_at BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS upload_parts (
		upload_id   TEXT   NOT NULL REFERENCES multipart_uploads (upload_id) ON DELETE CASCADE,
		part_number INT    NOT NULL,
		id          UUID   NOT NULL,
		size        BIGINT NOT NULL,
		etag        TEXT   NOT NULL,
		manifest    JSONB  NOT NULL,
		uploaded_at BIGINT NOT NULL,
		PRIMARY KEY (upload_id, part_number)
	)`,

	`CREATE TABLE IF NOT EXISTS spaces (
		id         UUID   PRIMARY KEY,
		name       TEXT   NOT NULL UNIQUE,
		owner      TEXT   NOT NULL,
		created_at BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS branches (
		space      UUID    NOT NULL,
		name       TEXT    NOT NULL,
		head       UUID,
		protected  BOOLEAN NOT NULL DEFAULT FALSE,
		protection JSONB   NOT NULL DEFAULT '{}',
		created_at BIGINT  NOT NULL,
		PRIMARY KEY (space, name)
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		space      UUID   NOT NULL,
		id         UUID   NOT NULL,
		branch     TEXT   NOT NULL DEFAULT '',
		parents    JSONB  NOT NULL DEFAULT '[]',
		tree_hash  TEXT   NOT NULL,
		author     TEXT   NOT NULL DEFAULT '',
		message    TEXT   NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		PRIMARY KEY (space, id)
	)`,

	`CREATE TABLE IF NOT EXISTS tree_entries (
		space        UUID   NOT NULL,
		snapshot     UUID   NOT NULL,
		path         TEXT   NOT NULL,
		type         TEXT   NOT NULL,
		file_version UUID,
		content_hash TEXT   NOT NULL DEFAULT '',
		mode         BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (space, snapshot, path)
	)`,

	`CREATE TABLE IF NOT EXISTS reviews (
		space         UUID   NOT NULL,
		number        BIGINT NOT NULL,
		title         TEXT   NOT NULL,
		author        TEXT   NOT NULL,
		source_branch TEXT   NOT NULL,
		target_branch TEXT   NOT NULL,
		status        TEXT   NOT NULL,
		labels        JSONB  NOT NULL DEFAULT '[]',
		created_at    BIGINT NOT NULL,
		merged_by     TEXT   NOT NULL DEFAULT '',
		merged_at     BIGINT NOT NULL DEFAULT 0,
		merge_commit  UUID,
		PRIMARY KEY (space, number)
	)`,

	`CREATE TABLE IF NOT EXISTS review_comments (
		space      UUID    NOT NULL,
		id         UUID    NOT NULL,
		review     BIGINT  NOT NULL,
		author     TEXT    NOT NULL,
		body       TEXT    NOT NULL,
		path       TEXT    NOT NULL DEFAULT '',
		line       INT     NOT NULL DEFAULT 0,
		reply_to   UUID,
		resolved   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT  NOT NULL,
		PRIMARY KEY (space, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_comments_review
		ON review_comments (space, review)`,

	`CREATE TABLE IF NOT EXISTS review_approvals (
		space       UUID   NOT NULL,
		review      BIGINT NOT NULL,
		reviewer    TEXT   NOT NULL,
		approved_at BIGINT NOT NULL,
		PRIMARY KEY (space, review, reviewer)
	)`,

	`CREATE TABLE IF NOT EXISTS members (
		space           UUID   NOT NULL,
		principal_type  TEXT   NOT NULL,
		principal_id    TEXT   NOT NULL,
		role            TEXT   NOT NULL DEFAULT '',
		capabilities    BIGINT NOT NULL DEFAULT 0,
		branch_patterns JSONB  NOT NULL DEFAULT '[]',
		path_patterns   JSONB  NOT NULL DEFAULT '[]',
		created_at      BIGINT NOT NULL,
		PRIMARY KEY (space, principal_type, principal_id)
	)`,

	`CREATE TABLE IF NOT EXISTS access_tokens (
		id              UUID   PRIMARY KEY,
		space           UUID   NOT NULL,
		issuer_type     TEXT   NOT NULL,
		issuer_id       TEXT   NOT NULL,
		capabilities    BIGINT NOT NULL DEFAULT 0,
		branch_patterns JSONB  NOT NULL DEFAULT '[]',
		path_patterns   JSONB  NOT NULL DEFAULT '[]',
		ip_allowlist    JSONB  NOT NULL DEFAULT '[]',
		expires_at      BIGINT NOT NULL DEFAULT 0,
		revoked_at      BIGINT NOT NULL DEFAULT 0,
		created_at      BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS idempotency_results (
		space      UUID   NOT NULL,
		op         TEXT   NOT NULL,
		key        TEXT   NOT NULL,
		result     BYTEA  NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (space, op, key)
	)`,
}

// Migrate applies the schema. Statements are idempotent so re-running on an
// up-to-date database is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := p.pool.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logger.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
