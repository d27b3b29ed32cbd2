// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"context"
	"encoding/base64"
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

const opComplete = "multipart.complete"

const defaultTTL = 24 * time.Hour

// serviceImpl implements the Service interface
type serviceImpl struct {
	db     db.DB
	chunks chunk.Service
	access access.Authorizer
}

// Config holds configuration for the multipart service
type Config struct {
	DB     db.DB
	Chunks chunk.Service

	// Access gates operations on the calling actor. Optional; nil means
	// open access (trusted in-process callers).
	Access access.Authorizer
}

// NewService creates a new multipart service
func NewService(cfg Config) (Service, error) {
	if cfg.DB == nil {
		return nil, service.NewValidationError("DB is required")
	}
	if cfg.Chunks == nil {
		return nil, service.NewValidationError("Chunks is required")
	}
	return &serviceImpl{db: cfg.DB, chunks: cfg.Chunks, access: cfg.Access}, nil
}

func newUploadID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func (s *serviceImpl) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if req.Bucket == "" || req.Key == "" {
		return nil, service.NewValidationError("bucket and key are required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, "", req.Key); err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()

	upload := &types.Upload{
		ID:        uuid.New(),
		UploadID:  newUploadID(),
		Space:     req.Space,
		Bucket:    req.Bucket,
		Key:       req.Key,
		Owner:     req.Owner,
		MimeType:  req.MimeType,
		Initiated: now.UnixNano(),
		ExpiresAt: now.Add(ttl).UnixNano(),
	}
	if err := s.db.CreateUpload(ctx, upload); err != nil {
		return nil, service.NewInternalError(err)
	}

	logger.Debug().
		Str("upload_id", upload.UploadID).
		Str("bucket", req.Bucket).
		Str("key", req.Key).
		Msg("multipart upload initiated")
	return &InitiateResult{UploadID: upload.UploadID, ExpiresAt: upload.ExpiresAt}, nil
}

// getUpload fetches the upload and authorizes the caller against its space
// and key before anything else about it is revealed. Under enforcement a
// missing upload reads as a denial so upload IDs cannot be probed.
func (s *serviceImpl) getUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	upload, err := s.db.GetUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			if s.access != nil {
				return nil, service.NewPermissionDeniedError()
			}
			return nil, service.NewNotFoundError(fmt.Sprintf("upload %s", uploadID))
		}
		return nil, service.NewInternalError(err)
	}
	if err := service.Authorize(ctx, s.access, upload.Space, types.CapWrite, "", upload.Key); err != nil {
		return nil, err
	}
	return upload, nil
}

func (s *serviceImpl) getLiveUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	upload, err := s.getUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.ExpiresAt > 0 && time.Now().UnixNano() > upload.ExpiresAt {
		return nil, service.NewExpiredError(fmt.Sprintf("upload %s", uploadID))
	}
	return upload, nil
}

func (s *serviceImpl) UploadPart(ctx context.Context, req *UploadPartRequest) (*UploadPartResult, error) {
	if req.PartNumber < 1 {
		return nil, service.NewValidationError("part number must be >= 1")
	}
	upload, err := s.getLiveUpload(ctx, req.UploadID)
	if err != nil {
		return nil, err
	}

	// A re-uploaded part replaces the previous payload; release the old
	// references before taking new ones.
	existing, err := s.db.ListParts(ctx, req.UploadID)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	var previous types.Manifest
	for _, p := range existing {
		if p.PartNumber == req.PartNumber {
			previous = p.Manifest
			break
		}
	}

	stored, err := s.chunks.Put(ctx, &chunk.PutRequest{Space: upload.Space, Data: req.Data})
	if err != nil {
		return nil, err
	}

	h := types.Md5PoolGetHasher()
	h.Write(req.Data)
	etag := hex.EncodeToString(h.Sum(nil))
	types.Md5PoolPutHasher(h)

	part := &types.UploadPart{
		ID:         uuid.New(),
		UploadID:   req.UploadID,
		PartNumber: req.PartNumber,
		Size:       stored.Size,
		ETag:       etag,
		Manifest:   stored.Manifest,
		UploadedAt: time.Now().UnixNano(),
	}
	if err := s.db.PutPart(ctx, part); err != nil {
		if derefErr := s.chunks.Deref(ctx, upload.Space, stored.Manifest); derefErr != nil {
			logger.Error().Err(derefErr).Str("upload_id", req.UploadID).Msg("release part references after failed store")
		}
		return nil, service.NewInternalError(err)
	}

	if previous != nil {
		if err := s.chunks.Deref(ctx, upload.Space, previous); err != nil {
			logger.Error().Err(err).
				Str("upload_id", req.UploadID).
				Int("part", req.PartNumber).
				Msg("release replaced part references")
		}
	}
	return &UploadPartResult{ETag: etag, Size: stored.Size}, nil
}

func (s *serviceImpl) Complete(ctx context.Context, req *CompleteRequest) (*CompleteResult, error) {
	if req.Space != uuid.Nil && req.IdempotencyKey != "" {
		if recorded, err := s.db.GetIdempotentResult(ctx, req.Space, opComplete, req.IdempotencyKey); err == nil {
			var result CompleteResult
			if err := json.Unmarshal(recorded, &result); err != nil {
				return nil, service.NewInternalError(fmt.Errorf("decode recorded result: %w", err))
			}
			return &result, nil
		} else if !errors.Is(err, db.ErrIdempotencyMiss) {
			return nil, service.NewInternalError(err)
		}
	}

	upload, err := s.getLiveUpload(ctx, req.UploadID)
	if err != nil {
		return nil, err
	}
	if req.Space != uuid.Nil && req.Space != upload.Space {
		return nil, service.NewValidationError("space does not match upload")
	}
	if len(req.Parts) == 0 {
		return nil, service.NewValidationError("at least one part is required")
	}

	stored, err := s.db.ListParts(ctx, req.UploadID)
	if err != nil {
		return nil, service.NewInternalError(err)
	}
	byNumber := make(map[int]*types.UploadPart, len(stored))
	for _, p := range stored {
		byNumber[p.PartNumber] = p
	}

	// Parts must be contiguous from 1 and match what was uploaded
	var manifest types.Manifest
	var size uint64
	for i, cp := range req.Parts {
		if cp.PartNumber != i+1 {
			return nil, service.NewValidationError(fmt.Sprintf(
				"parts must be contiguous from 1: position %d names part %d", i+1, cp.PartNumber))
		}
		p, ok := byNumber[cp.PartNumber]
		if !ok {
			return nil, service.NewValidationError(fmt.Sprintf("part %d was never uploaded", cp.PartNumber))
		}
		if p.ETag != cp.ETag {
			return nil, service.NewValidationError(fmt.Sprintf("part %d etag mismatch", cp.PartNumber))
		}
		manifest = manifest.Concat(p.Manifest)
		size += p.Size
	}
	if len(req.Parts) != len(stored) {
		return nil, service.NewValidationError(fmt.Sprintf(
			"complete names %d parts but %d were uploaded", len(req.Parts), len(stored)))
	}

	etag := multipartETag(req.Parts)

	obj := &types.ObjectVersion{
		Space:    upload.Space,
		Bucket:   upload.Bucket,
		Key:      upload.Key,
		Size:     size,
		ETag:     etag,
		MimeType: upload.MimeType,
		Manifest: manifest,
	}
	if err := s.db.AppendObjectVersion(ctx, obj, 0, false); err != nil {
		return nil, service.NewInternalError(err)
	}

	// References transferred to the object version; drop only the upload
	// bookkeeping.
	if err := s.db.DeleteUpload(ctx, req.UploadID); err != nil {
		logger.Error().Err(err).Str("upload_id", req.UploadID).Msg("delete completed upload")
	}

	result := &CompleteResult{
		Bucket:   upload.Bucket,
		Key:      upload.Key,
		Version:  obj.Version,
		Size:     size,
		ETag:     etag,
		Manifest: manifest,
	}

	if req.Space != uuid.Nil && req.IdempotencyKey != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if err := s.db.PutIdempotentResult(ctx, req.Space, opComplete, req.IdempotencyKey, encoded); err != nil {
			logger.Warn().Err(err).Str("upload_id", req.UploadID).Msg("record idempotent result failed")
		}
	}

	logger.Debug().
		Str("upload_id", req.UploadID).
		Str("bucket", upload.Bucket).
		Str("key", upload.Key).
		Uint64("size", size).
		Int("parts", len(req.Parts)).
		Msg("multipart upload completed")
	return result, nil
}

func (s *serviceImpl) Abort(ctx context.Context, uploadID string) error {
	// Expired uploads may still be aborted; only existence and authority
	// are checked here.
	upload, err := s.getUpload(ctx, uploadID)
	if err != nil {
		return err
	}

	parts, err := s.db.ListParts(ctx, uploadID)
	if err != nil {
		return service.NewInternalError(err)
	}
	for _, p := range parts {
		if err := s.chunks.Deref(ctx, upload.Space, p.Manifest); err != nil {
			return err
		}
	}
	if err := s.db.DeleteUpload(ctx, uploadID); err != nil {
		return service.NewInternalError(err)
	}

	logger.Debug().Str("upload_id", uploadID).Int("parts", len(parts)).Msg("multipart upload aborted")
	return nil
}

// multipartETag derives the published ETag from the part ETags, the way S3
// marks multipart objects: md5 over the concatenated part digests, suffixed
// with the part count.
func multipartETag(parts []CompletedPart) string {
	h := types.Md5PoolGetHasher()
	for _, p := range parts {
		if raw, err := hex.DecodeString(p.ETag); err == nil {
			h.Write(raw)
		} else {
			h.Write([]byte(p.ETag))
		}
	}
	sum := h.Sum(nil)
	types.Md5PoolPutHasher(h)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum), len(parts))
}
