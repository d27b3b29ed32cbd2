// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"time"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// InitiateRequest starts a multipart upload
type InitiateRequest struct {
	Space    uuid.UUID
	Bucket   string
	Key      string
	Owner    string
	MimeType string

	// TTL bounds how long the upload may stay incomplete before the
	// expiry sweep aborts it (default: 24 hours).
	TTL time.Duration
}

// InitiateResult carries the upload handle
type InitiateResult struct {
	UploadID  string
	ExpiresAt int64
}

// UploadPartRequest stores one part of an upload
type UploadPartRequest struct {
	UploadID   string
	PartNumber int // 1-based
	Data       []byte
}

// UploadPartResult is the outcome of an UploadPart
type UploadPartResult struct {
	ETag string
	Size uint64
}

// CompletedPart names one part in a Complete request
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteRequest assembles and publishes the upload
type CompleteRequest struct {
	// Space scopes the idempotency ledger; it must match the upload's
	// space when the upload still exists.
	Space    uuid.UUID
	UploadID string
	Parts    []CompletedPart

	// IdempotencyKey makes retried calls replay the recorded result.
	// Optional.
	IdempotencyKey string
}

// CompleteResult describes the published object version
type CompleteResult struct {
	Bucket   string         `json:"bucket"`
	Key      string         `json:"key"`
	Version  uint64         `json:"version"`
	Size     uint64         `json:"size"`
	ETag     string         `json:"etag"`
	Manifest types.Manifest `json:"manifest"`
}
