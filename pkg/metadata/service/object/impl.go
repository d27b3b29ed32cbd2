// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

const opPutObject = "object.put"

const defaultListLimit = 1000

// serviceImpl implements the Service interface
type serviceImpl struct {
	db     db.DB
	chunks chunk.Service
	access access.Authorizer
}

// Config holds configuration for the object service
type Config struct {
	DB     db.DB
	Chunks chunk.Service

	// Access gates operations on the calling actor. Optional; nil means
	// open access (trusted in-process callers).
	Access access.Authorizer
}

// NewService creates a new object service
func NewService(cfg Config) (Service, error) {
	if cfg.DB == nil {
		return nil, service.NewValidationError("DB is required")
	}
	if cfg.Chunks == nil {
		return nil, service.NewValidationError("Chunks is required")
	}
	return &serviceImpl{db: cfg.DB, chunks: cfg.Chunks, access: cfg.Access}, nil
}

func validateKey(bucket, key string) error {
	if bucket == "" {
		return service.NewValidationError("bucket is required")
	}
	if key == "" {
		return service.NewValidationError("key is required")
	}
	return nil
}

func (s *serviceImpl) PutObject(ctx context.Context, req *PutObjectRequest) (*PutObjectResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := validateKey(req.Bucket, req.Key); err != nil {
		return nil, err
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, "", req.Key); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if recorded, err := s.db.GetIdempotentResult(ctx, req.Space, opPutObject, req.IdempotencyKey); err == nil {
			var result PutObjectResult
			if err := json.Unmarshal(recorded, &result); err != nil {
				return nil, service.NewInternalError(fmt.Errorf("decode recorded result: %w", err))
			}
			return &result, nil
		} else if !errors.Is(err, db.ErrIdempotencyMiss) {
			return nil, service.NewInternalError(err)
		}
	}

	stored, err := s.chunks.Put(ctx, &chunk.PutRequest{Space: req.Space, Data: req.Data})
	if err != nil {
		return nil, err
	}

	h := types.Md5PoolGetHasher()
	h.Write(req.Data)
	etag := hex.EncodeToString(h.Sum(nil))
	types.Md5PoolPutHasher(h)

	obj := &types.ObjectVersion{
		Space:    req.Space,
		Bucket:   req.Bucket,
		Key:      req.Key,
		Size:     stored.Size,
		ETag:     etag,
		MimeType: req.MimeType,
		Manifest: stored.Manifest,
	}

	if err := s.db.AppendObjectVersion(ctx, obj, req.ExpectedVersion, req.EnforceVersion); err != nil {
		// The version chain moved underneath us; release the references we
		// just took before surfacing the conflict.
		if derefErr := s.chunks.Deref(ctx, req.Space, stored.Manifest); derefErr != nil {
			logger.Error().Err(derefErr).
				Str("bucket", req.Bucket).Str("key", req.Key).
				Msg("release references after failed append")
		}
		if errors.Is(err, db.ErrVersionConflict) {
			return nil, service.NewConflictError(fmt.Sprintf(
				"expected version %d is no longer current for %s/%s", req.ExpectedVersion, req.Bucket, req.Key))
		}
		return nil, service.NewInternalError(err)
	}

	result := &PutObjectResult{
		Version:  obj.Version,
		ETag:     etag,
		Size:     stored.Size,
		Deduped:  stored.DedupedChunks,
		Manifest: stored.Manifest,
	}

	if req.IdempotencyKey != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if err := s.db.PutIdempotentResult(ctx, req.Space, opPutObject, req.IdempotencyKey, encoded); err != nil {
			logger.Warn().Err(err).Str("key", req.Key).Msg("record idempotent result failed")
		}
	}

	logger.Debug().
		Str("space", req.Space.String()).
		Str("bucket", req.Bucket).
		Str("key", req.Key).
		Uint64("version", obj.Version).
		Msg("object stored")
	return result, nil
}

func (s *serviceImpl) lookup(ctx context.Context, req *GetObjectRequest) (*types.ObjectVersion, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := validateKey(req.Bucket, req.Key); err != nil {
		return nil, err
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapRead, "", req.Key); err != nil {
		return nil, err
	}

	var obj *types.ObjectVersion
	var err error
	if req.Version == 0 {
		obj, err = s.db.GetCurrentObject(ctx, req.Space, req.Bucket, req.Key)
		if err == nil && obj.IsDeleted() {
			return nil, service.NewNotFoundError(fmt.Sprintf("object %s/%s", req.Bucket, req.Key))
		}
	} else {
		// Pinned versions stay readable behind a tombstone until purged
		obj, err = s.db.GetObjectVersion(ctx, req.Space, req.Bucket, req.Key, req.Version)
	}
	if err != nil {
		if errors.Is(err, db.ErrObjectNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("object %s/%s", req.Bucket, req.Key))
		}
		return nil, service.NewInternalError(err)
	}
	return obj, nil
}

func (s *serviceImpl) GetObject(ctx context.Context, req *GetObjectRequest) (*GetObjectResult, error) {
	obj, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}

	assembled, err := s.chunks.Get(ctx, &chunk.GetRequest{Space: req.Space, Manifest: obj.Manifest})
	if err != nil {
		return nil, err
	}
	return &GetObjectResult{Object: obj, Data: assembled.Data}, nil
}

func (s *serviceImpl) HeadObject(ctx context.Context, req *GetObjectRequest) (*HeadObjectResult, error) {
	obj, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	return &HeadObjectResult{Object: obj}, nil
}

func (s *serviceImpl) DeleteObject(ctx context.Context, req *DeleteObjectRequest) (*DeleteObjectResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := validateKey(req.Bucket, req.Key); err != nil {
		return nil, err
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapDelete, "", req.Key); err != nil {
		return nil, err
	}

	obj, err := s.db.GetCurrentObject(ctx, req.Space, req.Bucket, req.Key)
	if err != nil {
		if errors.Is(err, db.ErrObjectNotFound) {
			return nil, service.NewNotFoundError(fmt.Sprintf("object %s/%s", req.Bucket, req.Key))
		}
		return nil, service.NewInternalError(err)
	}
	if obj.IsDeleted() {
		// Deleting a tombstone is a no-op
		return &DeleteObjectResult{Version: obj.Version}, nil
	}

	if err := s.db.MarkObjectDeleted(ctx, req.Space, req.Bucket, req.Key, time.Now().UnixNano()); err != nil {
		return nil, service.NewInternalError(err)
	}

	logger.Debug().
		Str("bucket", req.Bucket).
		Str("key", req.Key).
		Uint64("version", obj.Version).
		Msg("object tombstoned")
	return &DeleteObjectResult{Version: obj.Version}, nil
}

func (s *serviceImpl) ListObjects(ctx context.Context, req *ListObjectsRequest) (*ListObjectsResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if req.Bucket == "" {
		return nil, service.NewValidationError("bucket is required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapRead, "", ""); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	objects, err := s.db.ListObjects(ctx, req.Space, req.Bucket, req.Prefix, limit)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	return &ListObjectsResult{Objects: objects}, nil
}
