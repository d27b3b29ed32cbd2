// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package object implements the flat bucket/key namespace on top of the
// chunk store. Every write appends an immutable version; deletes are
// tombstones and reclamation is left to the purge sweep.
package object

import (
	"context"
)

// Service defines the interface for object operations.
type Service interface {
	// PutObject stores a new version of an object. With EnforceVersion set
	// the write only succeeds when the current version still matches
	// ExpectedVersion (0 = key must not exist).
	PutObject(ctx context.Context, req *PutObjectRequest) (*PutObjectResult, error)

	// GetObject retrieves an object's content and metadata. Version 0
	// means the current version; any other value pins a historic one.
	GetObject(ctx context.Context, req *GetObjectRequest) (*GetObjectResult, error)

	// HeadObject retrieves metadata without assembling the content.
	HeadObject(ctx context.Context, req *GetObjectRequest) (*HeadObjectResult, error)

	// DeleteObject tombstones the current version. Version history stays
	// readable by pinned version until the purge sweep runs.
	DeleteObject(ctx context.Context, req *DeleteObjectRequest) (*DeleteObjectResult, error)

	// ListObjects lists current, non-deleted objects under a key prefix.
	ListObjects(ctx context.Context, req *ListObjectsRequest) (*ListObjectsResult, error)
}
