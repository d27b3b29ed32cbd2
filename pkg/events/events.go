// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package events notifies downstream pipelines (indexing, OCR, embeddings)
// of new content. Delivery is fire-and-forget: a slow or failing subscriber
// never affects storage correctness.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/logger"

	"github.com/google/uuid"
)

// FileVersionCreated is published when a commit binds new content to a path.
type FileVersionCreated struct {
	Space       uuid.UUID `json:"space"`
	Snapshot    uuid.UUID `json:"snapshot"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Size        uint64    `json:"size"`
	Timestamp   int64     `json:"timestamp"` // Unix milli
}

// Emitter fans FileVersionCreated events out to subscribers.
type Emitter struct {
	mu      sync.RWMutex
	subs    []chan FileVersionCreated
	enabled bool
}

// NewEmitter creates an enabled emitter.
func NewEmitter() *Emitter {
	return &Emitter{enabled: true}
}

// NoopEmitter returns an emitter that drops all events.
func NoopEmitter() *Emitter {
	return &Emitter{enabled: false}
}

// Subscribe registers a buffered channel receiving future events.
// The returned cancel function detaches the subscription.
func (e *Emitter) Subscribe(buffer int) (<-chan FileVersionCreated, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan FileVersionCreated, buffer)

	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub == ch {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Emit publishes an event to all subscribers. A subscriber with a full
// buffer loses the event; the drop is logged and the write continues.
func (e *Emitter) Emit(ctx context.Context, ev FileVersionCreated) {
	if !e.enabled {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sub := range e.subs {
		select {
		case sub <- ev:
		default:
			logger.Warn().
				Str("space", ev.Space.String()).
				Str("path", ev.Path).
				Msg("subscriber buffer full, dropping event")
		}
	}
}
