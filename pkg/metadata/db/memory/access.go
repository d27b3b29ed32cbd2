// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

func copyMember(m *types.Member) *types.Member {
	cp := *m
	cp.BranchPatterns = append([]string(nil), m.BranchPatterns...)
	cp.PathPatterns = append([]string(nil), m.PathPatterns...)
	return &cp
}

func (d *DB) PutMember(ctx context.Context, m *types.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixNano()
	}
	d.members[scopedKey(m.Space, m.Principal.String())] = copyMember(m)
	return nil
}

func (d *DB) DeleteMember(ctx context.Context, space uuid.UUID, principal types.Principal) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := scopedKey(space, principal.String())
	if _, ok := d.members[k]; !ok {
		return db.ErrMemberNotFound
	}
	delete(d.members, k)
	return nil
}

func (d *DB) ListMembers(ctx context.Context, space uuid.UUID) ([]*types.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.Member
	for _, m := range d.members {
		if m.Space == space {
			result = append(result, copyMember(m))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Principal.String() < result[j].Principal.String()
	})
	return result, nil
}

func (d *DB) ListMembersForPrincipals(ctx context.Context, space uuid.UUID, principals []types.Principal) ([]*types.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*types.Member
	for _, p := range principals {
		if m, ok := d.members[scopedKey(space, p.String())]; ok {
			result = append(result, copyMember(m))
		}
	}
	return result, nil
}

func copyToken(t *types.AccessToken) *types.AccessToken {
	cp := *t
	cp.BranchPatterns = append([]string(nil), t.BranchPatterns...)
	cp.PathPatterns = append([]string(nil), t.PathPatterns...)
	cp.IPAllowlist = append([]string(nil), t.IPAllowlist...)
	return &cp
}

func (d *DB) PutToken(ctx context.Context, t *types.AccessToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixNano()
	}
	d.tokens[t.ID] = copyToken(t)
	return nil
}

func (d *DB) GetToken(ctx context.Context, id uuid.UUID) (*types.AccessToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tokens[id]
	if !ok {
		return nil, db.ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (d *DB) RevokeToken(ctx context.Context, id uuid.UUID, revokedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tokens[id]
	if !ok {
		return db.ErrTokenNotFound
	}
	t.RevokedAt = revokedAt
	return nil
}

// ============================================================================
// Idempotency Operations
// ============================================================================

func (d *DB) GetIdempotentResult(ctx context.Context, space uuid.UUID, op, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result, ok := d.idempotency[scopedKey(space, op, key)]
	if !ok {
		return nil, db.ErrIdempotencyMiss
	}
	buf := make([]byte, len(result))
	copy(buf, result)
	return buf, nil
}

func (d *DB) PutIdempotentResult(ctx context.Context, space uuid.UUID, op, key string, result []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, len(result))
	copy(buf, result)
	d.idempotency[scopedKey(space, op, key)] = buf
	return nil
}
