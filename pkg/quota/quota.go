// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota defines the reserve-then-commit contract consulted before
// the chunk store accepts new bytes. The billing-side quota service
// implements Reserver in production; StaticReserver covers tests and
// single-node deployments.
package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrQuotaExceeded is returned when a reservation would exceed the space's
// storage limit.
var ErrQuotaExceeded = fmt.Errorf("quota exceeded")

// Reserver grants byte reservations ahead of a write. Every reservation
// must be resolved exactly once, via Commit or Release.
type Reserver interface {
	Reserve(ctx context.Context, space uuid.UUID, bytes uint64) (*Reservation, error)
}

// Reservation is an in-flight byte grant.
type Reservation struct {
	Space uuid.UUID
	Bytes uint64

	commit  func()
	release func()
	once    sync.Once
}

// Commit finalizes the reservation: the bytes count against the space.
func (r *Reservation) Commit() {
	r.once.Do(r.commit)
}

// Release abandons the reservation, returning the bytes to the space.
func (r *Reservation) Release() {
	r.once.Do(r.release)
}

// NewReservation builds a Reservation with the given resolution callbacks.
// Intended for Reserver implementations.
func NewReservation(space uuid.UUID, bytes uint64, commit, release func()) *Reservation {
	if commit == nil {
		commit = func() {}
	}
	if release == nil {
		release = func() {}
	}
	return &Reservation{Space: space, Bytes: bytes, commit: commit, release: release}
}

// StaticReserver enforces a fixed per-space byte limit in memory.
// A zero limit means unlimited.
type StaticReserver struct {
	mu    sync.Mutex
	limit uint64
	used  map[uuid.UUID]uint64
}

// NewStaticReserver creates a StaticReserver with the given per-space limit.
func NewStaticReserver(limitBytes uint64) *StaticReserver {
	return &StaticReserver{
		limit: limitBytes,
		used:  make(map[uuid.UUID]uint64),
	}
}

func (s *StaticReserver) Reserve(ctx context.Context, space uuid.UUID, bytes uint64) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && s.used[space]+bytes > s.limit {
		return nil, ErrQuotaExceeded
	}
	s.used[space] += bytes

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.used[space] >= bytes {
			s.used[space] -= bytes
		} else {
			s.used[space] = 0
		}
	}
	return NewReservation(space, bytes, nil, release), nil
}

// Used reports the committed plus in-flight bytes for a space.
func (s *StaticReserver) Used(space uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[space]
}
