// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// PutRequest stores one piece of content in a space
type PutRequest struct {
	Space uuid.UUID
	Data  []byte

	// IdempotencyKey makes retried calls replay the recorded result
	// instead of double-counting references. Optional.
	IdempotencyKey string
}

// PutResult is the outcome of a Put
type PutResult struct {
	Manifest    types.Manifest `json:"manifest"`
	ContentHash string         `json:"content_hash"`
	Size        uint64         `json:"size"`

	// DedupedChunks counts chunks that were already present and needed no
	// payload write.
	DedupedChunks int `json:"deduped_chunks"`
}

// GetRequest reassembles content from a manifest
type GetRequest struct {
	Space    uuid.UUID
	Manifest types.Manifest
}

// GetResult carries the reassembled plaintext
type GetResult struct {
	Data []byte
}
