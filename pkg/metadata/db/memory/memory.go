// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory implementation of db.DB for testing
// and single-node development. Data lives in maps guarded by a single
// RWMutex, so every individual operation is atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// DB is an in-memory database implementation.
type DB struct {
	mu sync.RWMutex

	chunks       map[string]*types.Chunk         // key: space/chunkID
	fileVersions map[string]*types.FileVersion   // key: space/id
	fvByHash     map[string]uuid.UUID            // key: space/contentHash -> file version ID
	objects      map[string][]*types.ObjectVersion // key: space/bucket/key, versions ascending
	uploads      map[string]*types.Upload
	parts        map[string]map[int]*types.UploadPart // key: uploadID
	spaces       map[uuid.UUID]*types.Space
	spaceNames   map[string]uuid.UUID
	branches     map[string]*types.Branch // key: space/name
	snapshots    map[string]*types.Snapshot
	trees        map[string]types.Tree // key: space/snapshotID
	reviews      map[string]*types.Review
	reviewSeq    map[uuid.UUID]uint64
	comments     map[string]*types.ReviewComment // key: space/commentID
	approvals    map[string]map[string]*types.ReviewApproval // key: space/number -> reviewer
	members      map[string]*types.Member // key: space/principal
	tokens       map[uuid.UUID]*types.AccessToken
	idempotency  map[string][]byte // key: space/op/key
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		chunks:       make(map[string]*types.Chunk),
		fileVersions: make(map[string]*types.FileVersion),
		fvByHash:     make(map[string]uuid.UUID),
		objects:      make(map[string][]*types.ObjectVersion),
		uploads:      make(map[string]*types.Upload),
		parts:        make(map[string]map[int]*types.UploadPart),
		spaces:       make(map[uuid.UUID]*types.Space),
		spaceNames:   make(map[string]uuid.UUID),
		branches:     make(map[string]*types.Branch),
		snapshots:    make(map[string]*types.Snapshot),
		trees:        make(map[string]types.Tree),
		reviews:      make(map[string]*types.Review),
		reviewSeq:    make(map[uuid.UUID]uint64),
		comments:     make(map[string]*types.ReviewComment),
		approvals:    make(map[string]map[string]*types.ReviewApproval),
		members:      make(map[string]*types.Member),
		tokens:       make(map[uuid.UUID]*types.AccessToken),
		idempotency:  make(map[string][]byte),
	}
}

func chunkKey(space uuid.UUID, id types.ChunkID) string {
	return space.String() + "/" + id.String()
}

func objectKey(space uuid.UUID, bucket, key string) string {
	return space.String() + "/" + bucket + "/" + key
}

func scopedKey(space uuid.UUID, parts ...string) string {
	return space.String() + "/" + strings.Join(parts, "/")
}

// ============================================================================
// Chunk Operations
// ============================================================================

func (d *DB) IncrementChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := chunkKey(space, id)
	if chunk, ok := d.chunks[k]; ok {
		chunk.RefCount++
		chunk.ZeroSince = 0
		return nil
	}
	d.chunks[k] = &types.Chunk{
		Space:     space,
		ID:        id,
		Size:      size,
		RefCount:  1,
		CreatedAt: time.Now().UnixNano(),
	}
	return nil
}

func (d *DB) DecrementChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk, ok := d.chunks[chunkKey(space, id)]
	if !ok {
		return db.ErrChunkNotFound
	}
	if chunk.RefCount > 0 {
		chunk.RefCount--
	}
	if chunk.RefCount == 0 && chunk.ZeroSince == 0 {
		chunk.ZeroSince = time.Now().UnixNano()
	}
	return nil
}

func (d *DB) GetChunk(ctx context.Context, space uuid.UUID, id types.ChunkID) (*types.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chunk, ok := d.chunks[chunkKey(space, id)]
	if !ok {
		return nil, db.ErrChunkNotFound
	}
	cp := *chunk
	return &cp, nil
}

func (d *DB) GetChunkRefCount(ctx context.Context, space uuid.UUID, id types.ChunkID) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chunk, ok := d.chunks[chunkKey(space, id)]
	if !ok {
		return 0, db.ErrChunkNotFound
	}
	return chunk.RefCount, nil
}

func (d *DB) GetZeroRefChunks(ctx context.Context, olderThan time.Time, limit int) ([]*types.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cutoff := olderThan.UnixNano()
	var result []*types.Chunk
	for _, chunk := range d.chunks {
		if chunk.RefCount == 0 && chunk.ZeroSince > 0 && chunk.ZeroSince < cutoff {
			cp := *chunk
			result = append(result, &cp)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (d *DB) DeleteChunk(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.chunks, chunkKey(space, id))
	return nil
}

// ============================================================================
// File Version Operations
// ============================================================================

func (d *DB) PutFileVersion(ctx context.Context, fv *types.FileVersion) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fv.ID == uuid.Nil {
		fv.ID = uuid.New()
	}
	if fv.CreatedAt == 0 {
		fv.CreatedAt = time.Now().UnixNano()
	}
	cp := *fv
	d.fileVersions[scopedKey(fv.Space, fv.ID.String())] = &cp
	d.fvByHash[scopedKey(fv.Space, fv.ContentHash)] = fv.ID
	return nil
}

func (d *DB) GetFileVersion(ctx context.Context, space, id uuid.UUID) (*types.FileVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fv, ok := d.fileVersions[scopedKey(space, id.String())]
	if !ok {
		return nil, db.ErrFileVersionNotFound
	}
	cp := *fv
	return &cp, nil
}

func (d *DB) GetFileVersionByHash(ctx context.Context, space uuid.UUID, contentHash string) (*types.FileVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.fvByHash[scopedKey(space, contentHash)]
	if !ok {
		return nil, db.ErrFileVersionNotFound
	}
	fv, ok := d.fileVersions[scopedKey(space, id.String())]
	if !ok {
		return nil, db.ErrFileVersionNotFound
	}
	cp := *fv
	return &cp, nil
}

// ============================================================================
// Object Operations
// ============================================================================

func (d *DB) AppendObjectVersion(ctx context.Context, obj *types.ObjectVersion, expected uint64, enforce bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := objectKey(obj.Space, obj.Bucket, obj.Key)
	versions := d.objects[k]

	var current uint64
	if len(versions) > 0 {
		current = versions[len(versions)-1].Version
	}
	if enforce && current != expected {
		return db.ErrVersionConflict
	}

	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	if obj.CreatedAt == 0 {
		obj.CreatedAt = time.Now().UnixNano()
	}
	obj.Version = current + 1
	obj.IsCurrent = true

	for _, v := range versions {
		v.IsCurrent = false
	}
	cp := *obj
	d.objects[k] = append(versions, &cp)
	return nil
}

func (d *DB) GetCurrentObject(ctx context.Context, space uuid.UUID, bucket, key string) (*types.ObjectVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	versions := d.objects[objectKey(space, bucket, key)]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].IsCurrent {
			cp := *versions[i]
			return &cp, nil
		}
	}
	return nil, db.ErrObjectNotFound
}

func (d *DB) GetObjectVersion(ctx context.Context, space uuid.UUID, bucket, key string, version uint64) (*types.ObjectVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, v := range d.objects[objectKey(space, bucket, key)] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, db.ErrObjectNotFound
}

func (d *DB) MarkObjectDeleted(ctx context.Context, space uuid.UUID, bucket, key string, deletedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	versions := d.objects[objectKey(space, bucket, key)]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].IsCurrent {
			versions[i].DeletedAt = deletedAt
			return nil
		}
	}
	return db.ErrObjectNotFound
}

func (d *DB) ListObjects(ctx context.Context, space uuid.UUID, bucket, prefix string, limit int) ([]*types.ObjectVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.ObjectVersion
	for _, versions := range d.objects {
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			if !v.IsCurrent {
				continue
			}
			if v.Space != space || v.Bucket != bucket || v.DeletedAt > 0 {
				break
			}
			if prefix != "" && !strings.HasPrefix(v.Key, prefix) {
				break
			}
			cp := *v
			result = append(result, &cp)
			break
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (d *DB) ListTombstonedVersions(ctx context.Context, olderThan int64, limit int) ([]*types.ObjectVersion, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.ObjectVersion
	for _, versions := range d.objects {
		for _, v := range versions {
			if v.DeletedAt > 0 && v.DeletedAt < olderThan {
				cp := *v
				result = append(result, &cp)
				if limit > 0 && len(result) >= limit {
					return result, nil
				}
			}
		}
	}
	return result, nil
}

func (d *DB) DeleteObjectVersion(ctx context.Context, space uuid.UUID, bucket, key string, version uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := objectKey(space, bucket, key)
	versions := d.objects[k]
	for i, v := range versions {
		if v.Version == version {
			d.objects[k] = append(versions[:i], versions[i+1:]...)
			if len(d.objects[k]) == 0 {
				delete(d.objects, k)
			}
			return nil
		}
	}
	return db.ErrObjectNotFound
}

// ============================================================================
// Multipart Operations
// ============================================================================

func (d *DB) CreateUpload(ctx context.Context, upload *types.Upload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *upload
	d.uploads[upload.UploadID] = &cp
	d.parts[upload.UploadID] = make(map[int]*types.UploadPart)
	return nil
}

func (d *DB) GetUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	upload, ok := d.uploads[uploadID]
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	cp := *upload
	return &cp, nil
}

func (d *DB) DeleteUpload(ctx context.Context, uploadID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.uploads, uploadID)
	delete(d.parts, uploadID)
	return nil
}

func (d *DB) PutPart(ctx context.Context, part *types.UploadPart) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.uploads[part.UploadID]; !ok {
		return db.ErrUploadNotFound
	}
	cp := *part
	d.parts[part.UploadID][part.PartNumber] = &cp
	return nil
}

func (d *DB) ListParts(ctx context.Context, uploadID string) ([]*types.UploadPart, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byNumber, ok := d.parts[uploadID]
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	result := make([]*types.UploadPart, 0, len(byNumber))
	for _, part := range byNumber {
		cp := *part
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PartNumber < result[j].PartNumber
	})
	return result, nil
}

func (d *DB) ListExpiredUploads(ctx context.Context, now int64, limit int) ([]*types.Upload, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.Upload
	for _, upload := range d.uploads {
		if upload.ExpiresAt > 0 && upload.ExpiresAt < now {
			cp := *upload
			result = append(result, &cp)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// ============================================================================
// Transactions / lifecycle
// ============================================================================

func (d *DB) WithTx(ctx context.Context, fn func(tx db.TxStore) error) error {
	// In-memory DB is already atomic via mutex, just run directly
	return fn(d)
}

func (d *DB) Migrate(ctx context.Context) error {
	// No-op for in-memory database
	return nil
}

func (d *DB) Close() error {
	return nil
}
