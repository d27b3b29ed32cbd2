// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package gc provides background garbage collection: it removes chunk
// payloads whose ref count has sat at zero past the grace window, aborts
// expired multipart uploads, and purges tombstoned object versions past the
// retention window.
package gc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/multipart"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	gcRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_runs_total",
		Help: "Total number of GC runs",
	})

	gcChunksDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_chunks_deleted_total",
		Help: "Total number of chunks removed by GC",
	})

	gcBytesReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_bytes_reclaimed_total",
		Help: "Total plaintext bytes of chunks removed by GC",
	})

	gcUploadsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_uploads_aborted_total",
		Help: "Total number of expired multipart uploads aborted by GC",
	})

	gcVersionsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_versions_purged_total",
		Help: "Total number of tombstoned object versions purged by GC",
	})

	gcLastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vaultclaw_gc_last_run_timestamp",
		Help: "Timestamp of last GC run",
	})

	gcDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vaultclaw_gc_duration_seconds",
		Help:    "Duration of GC runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	gcErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultclaw_gc_errors_total",
		Help: "Total number of GC errors",
	})
)

func init() {
	prometheus.MustRegister(
		gcRunsTotal,
		gcChunksDeleted,
		gcBytesReclaimed,
		gcUploadsAborted,
		gcVersionsPurged,
		gcLastRunTime,
		gcDuration,
		gcErrors,
	)
}

// Service runs the garbage collection sweeps.
type Service struct {
	db        db.DB
	backend   storage.Backend
	uploads   multipart.Service
	derefer   Derefer
	interval  time.Duration
	grace     time.Duration
	retention time.Duration
	batchSize int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// Derefer releases the chunk references held by a purged object version.
// Satisfied by the chunk service.
type Derefer interface {
	Deref(ctx context.Context, space uuid.UUID, manifest types.Manifest) error
}

// Config holds configuration for the GC service.
type Config struct {
	// DB is the metadata database
	DB db.DB

	// Backend stores the encrypted chunk payloads
	Backend storage.Backend

	// Uploads aborts expired multipart uploads
	Uploads multipart.Service

	// Derefer releases references of purged versions
	Derefer Derefer

	// Interval is how often to run GC (default: 5 minutes)
	Interval time.Duration

	// GracePeriod is how long a chunk must sit at zero refs before
	// collection (default: 1 hour)
	GracePeriod time.Duration

	// Retention is how long a tombstoned version stays purgeable-not-purged
	// (default: 30 days)
	Retention time.Duration

	// BatchSize is how many rows to process per sweep (default: 1000)
	BatchSize int
}

// NewService creates a new GC service.
func NewService(cfg Config) *Service {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 1 * time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}

	return &Service{
		db:        cfg.DB,
		backend:   cfg.Backend,
		uploads:   cfg.Uploads,
		derefer:   cfg.Derefer,
		interval:  cfg.Interval,
		grace:     cfg.GracePeriod,
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
	}
}

// Start begins the GC loop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop stops the GC loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
	s.running = false
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.collect(ctx)

	for {
		select {
		case <-ticker.C:
			s.collect(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) collect(ctx context.Context) {
	start := time.Now()
	gcRunsTotal.Inc()
	gcLastRunTime.SetToCurrentTime()

	s.purgeTombstones(ctx)
	s.abortExpiredUploads(ctx)
	s.sweepChunks(ctx)

	gcDuration.Observe(time.Since(start).Seconds())
}

// sweepChunks removes chunks whose ref count has been zero since before the
// grace cutoff. The registry row and the payload go inside one transaction
// that re-checks the count, so a writer re-registering the same content
// observes both gone and restores the payload under its own transaction.
func (s *Service) sweepChunks(ctx context.Context) {
	cutoff := time.Now().Add(-s.grace)

	chunks, err := s.db.GetZeroRefChunks(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("gc: list zero-ref chunks")
		gcErrors.Inc()
		return
	}
	if len(chunks) == 0 {
		return
	}

	logger.Info().Int("chunks", len(chunks)).Msg("gc: processing zero-ref chunks")

	var deletedCount int
	var deletedBytes uint64

	for _, c := range chunks {
		err := s.db.WithTx(ctx, func(tx db.TxStore) error {
			// Re-check under the transaction: the chunk may have been
			// re-referenced since the listing.
			current, err := tx.GetChunkRefCount(ctx, c.Space, c.ID)
			if err != nil {
				if errors.Is(err, db.ErrChunkNotFound) {
					return nil
				}
				return err
			}
			if current > 0 {
				logger.Debug().
					Str("chunk_id", c.ID.String()).
					Int64("ref_count", current).
					Msg("gc: chunk re-referenced, skipping")
				return nil
			}

			if err := tx.DeleteChunk(ctx, c.Space, c.ID); err != nil {
				return err
			}
			if err := s.backend.Delete(ctx, c.Space, c.ID); err != nil {
				return err
			}
			deletedCount++
			deletedBytes += c.Size
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("chunk_id", c.ID.String()).Msg("gc: delete chunk")
			gcErrors.Inc()
			continue
		}
	}

	gcChunksDeleted.Add(float64(deletedCount))
	gcBytesReclaimed.Add(float64(deletedBytes))

	logger.Info().
		Int("deleted", deletedCount).
		Uint64("bytes", deletedBytes).
		Msg("gc: chunk sweep completed")
}

// abortExpiredUploads releases the references of uploads past their expiry.
func (s *Service) abortExpiredUploads(ctx context.Context) {
	if s.uploads == nil {
		return
	}

	expired, err := s.db.ListExpiredUploads(ctx, time.Now().UnixNano(), s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("gc: list expired uploads")
		gcErrors.Inc()
		return
	}

	var aborted int
	for _, u := range expired {
		if err := s.uploads.Abort(ctx, u.UploadID); err != nil {
			logger.Warn().Err(err).Str("upload_id", u.UploadID).Msg("gc: abort expired upload")
			gcErrors.Inc()
			continue
		}
		aborted++
	}
	if aborted > 0 {
		gcUploadsAborted.Add(float64(aborted))
		logger.Info().Int("aborted", aborted).Msg("gc: expired uploads aborted")
	}
}

// purgeTombstones hard-deletes object versions tombstoned before the
// retention cutoff and releases their chunk references, which queues the
// chunks for the next sweep.
func (s *Service) purgeTombstones(ctx context.Context) {
	if s.derefer == nil {
		return
	}

	cutoff := time.Now().Add(-s.retention).UnixNano()
	versions, err := s.db.ListTombstonedVersions(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("gc: list tombstoned versions")
		gcErrors.Inc()
		return
	}

	var purged int
	for _, v := range versions {
		if err := s.derefer.Deref(ctx, v.Space, v.Manifest); err != nil {
			logger.Warn().Err(err).
				Str("bucket", v.Bucket).
				Str("key", v.Key).
				Msg("gc: release purged version references")
			gcErrors.Inc()
			continue
		}
		if err := s.db.DeleteObjectVersion(ctx, v.Space, v.Bucket, v.Key, v.Version); err != nil {
			logger.Warn().Err(err).
				Str("bucket", v.Bucket).
				Str("key", v.Key).
				Msg("gc: delete purged version")
			gcErrors.Inc()
		}
		purged++
	}
	if purged > 0 {
		gcVersionsPurged.Add(float64(purged))
		logger.Info().Int("purged", purged).Msg("gc: tombstone purge completed")
	}
}

// RunOnce performs a single GC pass (useful for testing).
func (s *Service) RunOnce(ctx context.Context) {
	s.collect(ctx)
}
