// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists sealed chunk payloads. Payloads are content
// addressed and append-mostly: a payload is written once under its digest
// and never mutated, so duplicate writes of the same chunk are harmless.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// ErrPayloadNotFound is returned when a chunk payload is missing from the
// backend.
var ErrPayloadNotFound = fmt.Errorf("chunk payload not found")

// Backend stores encrypted chunk payloads keyed by (space, chunk digest).
type Backend interface {
	Write(ctx context.Context, space uuid.UUID, id types.ChunkID, payload []byte) error
	Read(ctx context.Context, space uuid.UUID, id types.ChunkID) ([]byte, error)
	Delete(ctx context.Context, space uuid.UUID, id types.ChunkID) error
	Has(ctx context.Context, space uuid.UUID, id types.ChunkID) (bool, error)
}

// ============================================================================
// Memory backend
// ============================================================================

// Memory is an in-memory Backend for tests.
type Memory struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemory creates an in-memory backend.
func NewMemory() *Memory {
	return &Memory{payloads: make(map[string][]byte)}
}

func memKey(space uuid.UUID, id types.ChunkID) string {
	return space.String() + "/" + id.String()
}

func (m *Memory) Write(ctx context.Context, space uuid.UUID, id types.ChunkID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.payloads[memKey(space, id)] = buf
	return nil
}

func (m *Memory) Read(ctx context.Context, space uuid.UUID, id types.ChunkID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.payloads[memKey(space, id)]
	if !ok {
		return nil, ErrPayloadNotFound
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return buf, nil
}

func (m *Memory) Delete(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.payloads, memKey(space, id))
	return nil
}

func (m *Memory) Has(ctx context.Context, space uuid.UUID, id types.ChunkID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.payloads[memKey(space, id)]
	return ok, nil
}

// Len reports the number of stored payloads (for tests).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payloads)
}

// ============================================================================
// Filesystem backend
// ============================================================================

// FS stores payloads on the local filesystem, sharded by digest prefix the
// same way chunk servers lay out their data directories.
type FS struct {
	root string
}

// NewFS creates a filesystem backend rooted at dir.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FS{root: dir}, nil
}

func (f *FS) path(space uuid.UUID, id types.ChunkID) string {
	return id.FullPath(filepath.Join(f.root, space.String()))
}

func (f *FS) Write(ctx context.Context, space uuid.UUID, id types.ChunkID, payload []byte) error {
	path := f.path(space, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}

	// Write to a temp file and rename so readers never observe a partial
	// payload.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chunk-*")
	if err != nil {
		return fmt.Errorf("create temp chunk: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chunk: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename chunk: %w", err)
	}
	return nil
}

func (f *FS) Read(ctx context.Context, space uuid.UUID, id types.ChunkID) ([]byte, error) {
	payload, err := os.ReadFile(f.path(space, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPayloadNotFound
		}
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	return payload, nil
}

func (f *FS) Delete(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	if err := os.Remove(f.path(space, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete chunk: %w", err)
	}
	return nil
}

func (f *FS) Has(ctx context.Context, space uuid.UUID, id types.ChunkID) (bool, error) {
	_, err := os.Stat(f.path(space, id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
