// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault assembles the storage services into a single node: chunk
// store, object layer, multipart uploads, version graph, review engine,
// access control and background GC, all over one metadata database and one
// payload backend. API tiers embed a Node rather than wiring the services
// themselves.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/events"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/gc"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/graph"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/multipart"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/object"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/review"
	"github.com/C-0711/Vaultclaw/pkg/quota"
	"github.com/C-0711/Vaultclaw/pkg/storage"
)

// Config holds everything a Node needs.
type Config struct {
	// DB is the metadata database.
	DB db.DB

	// Backend stores the encrypted chunk payloads.
	Backend storage.Backend

	// Keys provides per-space encryption keys.
	Keys crypt.KeyProvider

	// TokenSecret signs scoped access tokens. Optional; empty disables
	// token issuance.
	TokenSecret []byte

	// Reserver enforces per-space quotas. Optional.
	Reserver quota.Reserver

	// EnforceAccess gates every service operation on the actor carried in
	// the request context. Off by default for embedded single-principal
	// deployments.
	EnforceAccess bool

	// GCInterval, GCGracePeriod, GCRetention and GCBatchSize tune the
	// background sweeps; zero values take the gc package defaults.
	GCInterval    time.Duration
	GCGracePeriod time.Duration
	GCRetention   time.Duration
	GCBatchSize   int
}

// Node bundles the vault services over shared storage.
type Node struct {
	DB         db.DB
	Chunks     chunk.Service
	Objects    object.Service
	Uploads    multipart.Service
	Graph      graph.Service
	Reviews    review.Service
	Authorizer access.Authorizer
	Members    *access.Manager
	Tokens     *access.TokenIssuer
	Events     *events.Emitter

	gc *gc.Service
}

// New wires up a Node. The GC loop is not started; call Start.
func New(cfg Config) (*Node, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("DB is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("Backend is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("Keys is required")
	}

	emitter := events.NewEmitter()

	authorizer, err := access.NewAuthorizer(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("authorizer: %w", err)
	}
	var guard access.Authorizer
	if cfg.EnforceAccess {
		guard = authorizer
	}

	chunks, err := chunk.NewService(chunk.Config{
		DB:       cfg.DB,
		Backend:  cfg.Backend,
		Keys:     cfg.Keys,
		Reserver: cfg.Reserver,
		Access:   guard,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk service: %w", err)
	}
	objects, err := object.NewService(object.Config{DB: cfg.DB, Chunks: chunks, Access: guard})
	if err != nil {
		return nil, fmt.Errorf("object service: %w", err)
	}
	uploads, err := multipart.NewService(multipart.Config{DB: cfg.DB, Chunks: chunks, Access: guard})
	if err != nil {
		return nil, fmt.Errorf("multipart service: %w", err)
	}
	graphSvc, err := graph.NewService(graph.Config{DB: cfg.DB, Chunks: chunks, Emitter: emitter, Access: guard})
	if err != nil {
		return nil, fmt.Errorf("graph service: %w", err)
	}
	reviews, err := review.NewService(review.Config{DB: cfg.DB, Graph: graphSvc, Access: guard})
	if err != nil {
		return nil, fmt.Errorf("review service: %w", err)
	}
	members, err := access.NewManager(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("membership manager: %w", err)
	}

	// The sweeps run without an actor, so they get their own ungated
	// chunk and upload services.
	gcChunks, err := chunk.NewService(chunk.Config{DB: cfg.DB, Backend: cfg.Backend, Keys: cfg.Keys})
	if err != nil {
		return nil, fmt.Errorf("gc chunk service: %w", err)
	}
	gcUploads, err := multipart.NewService(multipart.Config{DB: cfg.DB, Chunks: gcChunks})
	if err != nil {
		return nil, fmt.Errorf("gc multipart service: %w", err)
	}

	var tokens *access.TokenIssuer
	if len(cfg.TokenSecret) > 0 {
		tokens, err = access.NewTokenIssuer(cfg.DB, cfg.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
	}

	return &Node{
		DB:         cfg.DB,
		Chunks:     chunks,
		Objects:    objects,
		Uploads:    uploads,
		Graph:      graphSvc,
		Reviews:    reviews,
		Authorizer: authorizer,
		Members:    members,
		Tokens:     tokens,
		Events:     emitter,
		gc: gc.NewService(gc.Config{
			DB:          cfg.DB,
			Backend:     cfg.Backend,
			Uploads:     gcUploads,
			Derefer:     gcChunks,
			Interval:    cfg.GCInterval,
			GracePeriod: cfg.GCGracePeriod,
			Retention:   cfg.GCRetention,
			BatchSize:   cfg.GCBatchSize,
		}),
	}, nil
}

// Start launches the background GC loop.
func (n *Node) Start(ctx context.Context) {
	n.gc.Start(ctx)
}

// CollectGarbage runs one synchronous GC pass.
func (n *Node) CollectGarbage(ctx context.Context) {
	n.gc.RunOnce(ctx)
}

// Close stops the GC loop and closes the database.
func (n *Node) Close() error {
	n.gc.Stop()
	return n.DB.Close()
}
