// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk implements the content-addressable chunk store: content-
// defined chunking, per-space deduplication, encryption at rest and
// reference counting.
package chunk

import (
	"context"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// Service defines the interface for chunk store operations.
type Service interface {
	// Put splits content into chunks, stores the missing ones encrypted,
	// bumps ref counts and returns the manifest. Duplicate content costs
	// only registry rows, never payload writes.
	Put(ctx context.Context, req *PutRequest) (*PutResult, error)

	// Get reassembles content from a manifest, verifying every chunk
	// digest after decryption.
	Get(ctx context.Context, req *GetRequest) (*GetResult, error)

	// Deref releases one reference on every chunk of a manifest. Chunks
	// reaching zero references are left for the GC grace window, never
	// reclaimed synchronously.
	Deref(ctx context.Context, space uuid.UUID, manifest types.Manifest) error
}
