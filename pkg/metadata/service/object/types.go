// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// PutObjectRequest stores a new object version
type PutObjectRequest struct {
	Space    uuid.UUID
	Bucket   string
	Key      string
	Data     []byte
	MimeType string

	// ExpectedVersion is the version the caller believes is current;
	// 0 means the key must not exist yet. Only checked when
	// EnforceVersion is set.
	ExpectedVersion uint64
	EnforceVersion  bool

	// IdempotencyKey makes retried calls replay the recorded result.
	// Optional.
	IdempotencyKey string
}

// PutObjectResult is the outcome of a PutObject
type PutObjectResult struct {
	Version  uint64         `json:"version"`
	ETag     string         `json:"etag"`
	Size     uint64         `json:"size"`
	Deduped  int            `json:"deduped"`
	Manifest types.Manifest `json:"manifest"`
}

// GetObjectRequest retrieves an object version
type GetObjectRequest struct {
	Space  uuid.UUID
	Bucket string
	Key    string

	// Version pins a historic version; 0 selects the current one
	Version uint64
}

// GetObjectResult carries the assembled content and its metadata
type GetObjectResult struct {
	Object *types.ObjectVersion
	Data   []byte
}

// HeadObjectResult carries metadata only
type HeadObjectResult struct {
	Object *types.ObjectVersion
}

// DeleteObjectRequest tombstones the current version of a key
type DeleteObjectRequest struct {
	Space  uuid.UUID
	Bucket string
	Key    string
}

// DeleteObjectResult is the outcome of a DeleteObject
type DeleteObjectResult struct {
	Version uint64 `json:"version"` // the tombstoned version
}

// ListObjectsRequest lists current objects under a prefix
type ListObjectsRequest struct {
	Space  uuid.UUID
	Bucket string
	Prefix string
	Limit  int // default 1000
}

// ListObjectsResult carries the listing
type ListObjectsResult struct {
	Objects []*types.ObjectVersion
}
