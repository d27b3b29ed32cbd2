// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package multipart implements staged assembly of large objects. Parts
// arrive concurrently and out of order; Complete validates the set and
// publishes one object version whose manifest is the concatenation of the
// part manifests.
package multipart

import (
	"context"
)

// Service defines the interface for multipart upload operations.
type Service interface {
	// Initiate starts a multipart upload and returns its client-facing ID.
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// UploadPart stores one part. Re-uploading a part number replaces the
	// previous payload (last write wins).
	UploadPart(ctx context.Context, req *UploadPartRequest) (*UploadPartResult, error)

	// Complete validates that the named parts are contiguous from 1 and
	// match their ETags, then publishes the assembled object version.
	Complete(ctx context.Context, req *CompleteRequest) (*CompleteResult, error)

	// Abort discards the upload and releases every part's chunk
	// references.
	Abort(ctx context.Context, uploadID string) error
}
