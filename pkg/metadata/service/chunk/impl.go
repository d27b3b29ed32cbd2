// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/chunker"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/quota"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

const opPut = "chunk.put"

// serviceImpl implements the Service interface
type serviceImpl struct {
	db       db.DB
	backend  storage.Backend
	keys     crypt.KeyProvider
	chunker  *chunker.Chunker
	reserver quota.Reserver
	access   access.Authorizer
}

// Config holds configuration for the chunk service
type Config struct {
	DB      db.DB
	Backend storage.Backend
	Keys    crypt.KeyProvider

	// Chunking overrides DefaultConfig when set
	Chunking chunker.Config

	// Reserver is consulted before accepting new bytes. Optional; nil
	// means no quota enforcement.
	Reserver quota.Reserver

	// Access gates operations on the calling actor. Optional; nil means
	// open access (trusted in-process callers).
	Access access.Authorizer
}

// NewService creates a new chunk service
func NewService(cfg Config) (Service, error) {
	if cfg.DB == nil {
		return nil, service.NewValidationError("DB is required")
	}
	if cfg.Backend == nil {
		return nil, service.NewValidationError("Backend is required")
	}
	if cfg.Keys == nil {
		return nil, service.NewValidationError("Keys is required")
	}
	return &serviceImpl{
		db:       cfg.DB,
		backend:  cfg.Backend,
		keys:     cfg.Keys,
		chunker:  chunker.New(cfg.Chunking),
		reserver: cfg.Reserver,
		access:   cfg.Access,
	}, nil
}

func (s *serviceImpl) Put(ctx context.Context, req *PutRequest) (*PutResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapWrite, "", ""); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if recorded, err := s.db.GetIdempotentResult(ctx, req.Space, opPut, req.IdempotencyKey); err == nil {
			var result PutResult
			if err := json.Unmarshal(recorded, &result); err != nil {
				return nil, service.NewInternalError(fmt.Errorf("decode recorded result: %w", err))
			}
			return &result, nil
		} else if !errors.Is(err, db.ErrIdempotencyMiss) {
			return nil, service.NewInternalError(err)
		}
	}

	var reservation *quota.Reservation
	if s.reserver != nil {
		var err error
		reservation, err = s.reserver.Reserve(ctx, req.Space, uint64(len(req.Data)))
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				return nil, service.NewQuotaExceededError("storage quota exceeded")
			}
			return nil, service.NewInternalError(err)
		}
		defer reservation.Release()
	}

	key, err := s.keys.Key(ctx, req.Space)
	if err != nil {
		return nil, service.NewInternalError(fmt.Errorf("fetch space key: %w", err))
	}

	pieces := s.chunker.Split(req.Data)
	manifest := make(types.Manifest, 0, len(pieces))
	deduped := 0
	dedupedPieces := make(map[types.ChunkID][]byte)

	// Payloads first: an orphaned payload is harmless (content addressed,
	// eventually re-registered or GC'd), an orphaned registry row is not.
	for _, piece := range pieces {
		id := types.ChunkIDFromBytes(piece)
		manifest = append(manifest, types.ChunkRef{ChunkID: id, Size: uint64(len(piece))})

		exists, err := s.backend.Has(ctx, req.Space, id)
		if err != nil {
			return nil, service.NewInternalError(fmt.Errorf("check chunk %s: %w", id, err))
		}
		if exists {
			deduped++
			dedupedPieces[id] = piece
			continue
		}

		sealed, err := crypt.Seal(key, piece)
		if err != nil {
			return nil, service.NewInternalError(fmt.Errorf("seal chunk %s: %w", id, err))
		}
		if err := s.backend.Write(ctx, req.Space, id, sealed); err != nil {
			return nil, service.NewInternalError(fmt.Errorf("write chunk %s: %w", id, err))
		}
	}

	// Register all references atomically. Deduped payloads are re-checked
	// under the same transaction: the sweep removes a registry row and its
	// payload together, so a payload that vanished since the dedup check
	// must be written back before the new references commit.
	err = s.db.WithTx(ctx, func(tx db.TxStore) error {
		for _, ref := range manifest {
			if err := tx.IncrementChunkRefCount(ctx, req.Space, ref.ChunkID, ref.Size); err != nil {
				return fmt.Errorf("register chunk %s: %w", ref.ChunkID, err)
			}
		}
		for id, piece := range dedupedPieces {
			exists, err := s.backend.Has(ctx, req.Space, id)
			if err != nil {
				return fmt.Errorf("recheck chunk %s: %w", id, err)
			}
			if exists {
				continue
			}
			sealed, err := crypt.Seal(key, piece)
			if err != nil {
				return fmt.Errorf("seal chunk %s: %w", id, err)
			}
			if err := s.backend.Write(ctx, req.Space, id, sealed); err != nil {
				return fmt.Errorf("restore chunk %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, service.NewInternalError(err)
	}

	if reservation != nil {
		reservation.Commit()
	}

	result := &PutResult{
		Manifest:      manifest,
		ContentHash:   manifest.ContentHash(),
		Size:          uint64(len(req.Data)),
		DedupedChunks: deduped,
	}

	if req.IdempotencyKey != "" {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, service.NewInternalError(err)
		}
		if err := s.db.PutIdempotentResult(ctx, req.Space, opPut, req.IdempotencyKey, encoded); err != nil {
			logger.Warn().Err(err).Str("space", req.Space.String()).Msg("record idempotent result failed")
		}
	}

	logger.Debug().
		Str("space", req.Space.String()).
		Int("chunks", len(manifest)).
		Int("deduped", deduped).
		Uint64("size", result.Size).
		Msg("content stored")
	return result, nil
}

func (s *serviceImpl) Get(ctx context.Context, req *GetRequest) (*GetResult, error) {
	if req.Space == uuid.Nil {
		return nil, service.NewValidationError("space is required")
	}
	if err := service.Authorize(ctx, s.access, req.Space, types.CapRead, "", ""); err != nil {
		return nil, err
	}

	key, err := s.keys.Key(ctx, req.Space)
	if err != nil {
		return nil, service.NewInternalError(fmt.Errorf("fetch space key: %w", err))
	}

	data := make([]byte, 0, req.Manifest.TotalSize())
	for _, ref := range req.Manifest {
		sealed, err := s.backend.Read(ctx, req.Space, ref.ChunkID)
		if err != nil {
			if errors.Is(err, storage.ErrPayloadNotFound) {
				return nil, service.NewNotFoundError(fmt.Sprintf("chunk %s", ref.ChunkID))
			}
			return nil, service.NewInternalError(fmt.Errorf("read chunk %s: %w", ref.ChunkID, err))
		}

		plain, err := crypt.Open(key, sealed)
		if err != nil {
			return nil, service.NewCorruptError(fmt.Sprintf("chunk %s failed decryption", ref.ChunkID))
		}
		if types.ChunkIDFromBytes(plain) != ref.ChunkID {
			return nil, service.NewCorruptError(fmt.Sprintf("chunk %s digest mismatch", ref.ChunkID))
		}
		data = append(data, plain...)
	}
	return &GetResult{Data: data}, nil
}

func (s *serviceImpl) Deref(ctx context.Context, space uuid.UUID, manifest types.Manifest) error {
	if space == uuid.Nil {
		return service.NewValidationError("space is required")
	}
	if err := service.Authorize(ctx, s.access, space, types.CapWrite, "", ""); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx db.TxStore) error {
		for _, ref := range manifest {
			if err := tx.DecrementChunkRefCount(ctx, space, ref.ChunkID); err != nil {
				if errors.Is(err, db.ErrChunkNotFound) {
					// Already collected; nothing to release
					continue
				}
				return fmt.Errorf("deref chunk %s: %w", ref.ChunkID, err)
			}
		}
		return nil
	})
	if err != nil {
		return service.NewInternalError(err)
	}
	return nil
}
