// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunker implements content-defined chunking. Boundaries are chosen
// by a rolling hash over a sliding window, so a small edit only perturbs the
// chunks near it; the rest of the stream re-chunks identically and
// deduplicates against existing content.
package chunker

import "math/bits"

const windowSize = 64

// Config controls chunk boundary selection.
type Config struct {
	// MinSize is the minimum chunk size; no boundary is emitted before it.
	MinSize int

	// TargetSize is the average chunk size aimed for. Must be a power of two.
	TargetSize int

	// MaxSize is the hard upper bound; a boundary is forced at it.
	MaxSize int
}

// DefaultConfig returns the chunking parameters used by the chunk store.
func DefaultConfig() Config {
	return Config{
		MinSize:    64 * 1024,
		TargetSize: 256 * 1024,
		MaxSize:    1024 * 1024,
	}
}

// Chunker splits byte streams at content-defined boundaries.
type Chunker struct {
	cfg  Config
	mask uint64
}

// New creates a Chunker. Zero-valued config fields fall back to defaults;
// TargetSize is rounded up to a power of two for mask derivation.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MinSize <= 0 {
		cfg.MinSize = def.MinSize
	}
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = def.TargetSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxSize < cfg.MinSize {
		cfg.MaxSize = cfg.MinSize
	}

	// A boundary fires when hash&mask == mask, so mask carries
	// log2(TargetSize) one-bits for an average chunk of TargetSize.
	shift := 64 - bits.Len64(uint64(cfg.TargetSize)-1)
	mask := ^uint64(0) >> shift << shift

	return &Chunker{cfg: cfg, mask: mask}
}

// Split divides data into content-defined chunks. The concatenation of the
// returned slices equals data; every slice aliases the input. Deterministic
// for a given config.
func (c *Chunker) Split(data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := c.nextBoundary(data)
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// nextBoundary returns the length of the next chunk at the front of data.
func (c *Chunker) nextBoundary(data []byte) int {
	if len(data) <= c.cfg.MinSize {
		return len(data)
	}

	max := c.cfg.MaxSize
	if max > len(data) {
		max = len(data)
	}

	var h uint64
	// Prime the window over the bytes just before the earliest cut point.
	start := c.cfg.MinSize - windowSize
	if start < 0 {
		start = 0
	}
	for i := start; i < c.cfg.MinSize; i++ {
		h = (h << 1) | (h >> 63)
		h ^= gear[data[i]]
	}

	for i := c.cfg.MinSize; i < max; i++ {
		h = (h << 1) | (h >> 63)
		h ^= gear[data[i]]
		// Roll the trailing byte out of the window. It entered 64 rotations
		// ago, a full cycle of the 64-bit hash, so it cancels un-rotated.
		h ^= gear[data[i-windowSize]]
		if h&c.mask == c.mask {
			return i + 1
		}
	}
	return max
}
