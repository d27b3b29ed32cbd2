// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/hex"
	"path/filepath"

	"github.com/google/uuid"
)

// ChunkID uniquely identifies a chunk by the SHA-256 of its plaintext content.
// Chunks are scoped to a space; the same bytes in two spaces produce the same
// ChunkID but are tracked as distinct registry rows.
type ChunkID string

// ChunkIDFromBytes computes a ChunkID from plaintext chunk data
func ChunkIDFromBytes(data []byte) ChunkID {
	h := Sha256PoolGetHasher()
	h.Write(data)
	sum := h.Sum(nil)
	Sha256PoolPutHasher(h)
	return ChunkID(hex.EncodeToString(sum))
}

func (c ChunkID) String() string {
	return string(c)
}

// FullPath returns the full filesystem path for this chunk's payload
func (c ChunkID) FullPath(base string) string {
	return filepath.Join(base, c.SubDirs(), c.String())
}

// SubDirs returns the subdirectory path (for sharding across directories)
func (c ChunkID) SubDirs() string {
	s := c.String()
	if len(s) < 4 {
		return s
	}
	return filepath.Join(s[0:2], s[2:4])
}

// Chunk is one row of the chunk registry: a reference-counted,
// encrypted-at-rest unit of deduplicated content.
//
// RefCount is mutated only via atomic increment/decrement in the metadata DB.
// When RefCount reaches zero, ZeroSince records the time; the GC sweep only
// collects chunks whose ZeroSince is older than the grace window.
type Chunk struct {
	Space     uuid.UUID `json:"space"`
	ID        ChunkID   `json:"id"`
	Size      uint64    `json:"size"` // plaintext size
	RefCount  int64     `json:"ref_count"`
	ZeroSince int64     `json:"zero_since,omitempty"` // Unix nano; 0 while referenced
	CreatedAt int64     `json:"created_at"`           // Unix nano
}

// ChunkRef is one entry of a manifest: a chunk digest plus its plaintext size.
type ChunkRef struct {
	ChunkID ChunkID `json:"chunk_id"`
	Size    uint64  `json:"size"`
}

// Manifest is the ordered chunk list representing one piece of content.
type Manifest []ChunkRef

// TotalSize returns the plaintext size of the assembled content
func (m Manifest) TotalSize() uint64 {
	var total uint64
	for _, ref := range m {
		total += ref.Size
	}
	return total
}

// ContentHash computes the content digest of the whole manifest: the SHA-256
// over the ordered chunk digests. Two manifests with identical chunk
// sequences always share a content hash.
func (m Manifest) ContentHash() string {
	h := Sha256PoolGetHasher()
	for _, ref := range m {
		h.Write([]byte(ref.ChunkID))
	}
	sum := h.Sum(nil)
	Sha256PoolPutHasher(h)
	return hex.EncodeToString(sum)
}

// Concat appends other to m, returning the combined manifest.
func (m Manifest) Concat(other Manifest) Manifest {
	out := make(Manifest, 0, len(m)+len(other))
	out = append(out, m...)
	out = append(out, other...)
	return out
}
