// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// ============================================================================
// Membership Operations
// ============================================================================

func (s *queries) PutMember(ctx context.Context, m *types.Member) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixNano()
	}
	branchPatterns, err := jsonValue(m.BranchPatterns)
	if err != nil {
		return err
	}
	pathPatterns, err := jsonValue(m.PathPatterns)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO members
			(space, principal_type, principal_id, role, capabilities, branch_patterns, path_patterns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (space, principal_type, principal_id) DO UPDATE SET
			role = EXCLUDED.role,
			capabilities = EXCLUDED.capabilities,
			branch_patterns = EXCLUDED.branch_patterns,
			path_patterns = EXCLUDED.path_patterns
	`, m.Space, string(m.Principal.Type), m.Principal.ID, m.Role,
		int64(m.Capabilities), branchPatterns, pathPatterns, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

func (s *queries) DeleteMember(ctx context.Context, space uuid.UUID, principal types.Principal) error {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM members
		WHERE space = $1 AND principal_type = $2 AND principal_id = $3
	`, space, string(principal.Type), principal.ID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrMemberNotFound
	}
	return nil
}

func (s *queries) collectMembers(rows *sql.Rows) ([]*types.Member, error) {
	var members []*types.Member
	for rows.Next() {
		m := &types.Member{}
		var principalType string
		var caps int64
		var branchPatterns, pathPatterns []byte
		if err := rows.Scan(&m.Space, &principalType, &m.Principal.ID, &m.Role,
			&caps, &branchPatterns, &pathPatterns, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Principal.Type = types.PrincipalType(principalType)
		m.Capabilities = types.Capabilities(caps)
		if err := jsonScan(branchPatterns, &m.BranchPatterns); err != nil {
			return nil, err
		}
		if err := jsonScan(pathPatterns, &m.PathPatterns); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *queries) ListMembers(ctx context.Context, space uuid.UUID) ([]*types.Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT space, principal_type, principal_id, role, capabilities, branch_patterns, path_patterns, created_at
		FROM members
		WHERE space = $1
		ORDER BY principal_type, principal_id
	`, space)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	return s.collectMembers(rows)
}

func (s *queries) ListMembersForPrincipals(ctx context.Context, space uuid.UUID, principals []types.Principal) ([]*types.Member, error) {
	if len(principals) == 0 {
		return nil, nil
	}

	// Build an IN list over (type, id) pairs
	args := []any{space}
	var clauses []string
	for _, p := range principals {
		args = append(args, string(p.Type), p.ID)
		clauses = append(clauses, fmt.Sprintf("(principal_type = $%d AND principal_id = $%d)", len(args)-1, len(args)))
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT space, principal_type, principal_id, role, capabilities, branch_patterns, path_patterns, created_at
		FROM members
		WHERE space = $1 AND (`+strings.Join(clauses, " OR ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list members for principals: %w", err)
	}
	defer rows.Close()
	return s.collectMembers(rows)
}

// ============================================================================
// Token Operations
// ============================================================================

func (s *queries) PutToken(ctx context.Context, t *types.AccessToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixNano()
	}
	branchPatterns, err := jsonValue(t.BranchPatterns)
	if err != nil {
		return err
	}
	pathPatterns, err := jsonValue(t.PathPatterns)
	if err != nil {
		return err
	}
	ipAllowlist, err := jsonValue(t.IPAllowlist)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO access_tokens
			(id, space, issuer_type, issuer_id, capabilities, branch_patterns, path_patterns,
			 ip_allowlist, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.Space, string(t.Issuer.Type), t.Issuer.ID, int64(t.Capabilities),
		branchPatterns, pathPatterns, ipAllowlist, t.ExpiresAt, t.RevokedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

func (s *queries) GetToken(ctx context.Context, id uuid.UUID) (*types.AccessToken, error) {
	t := &types.AccessToken{}
	var issuerType string
	var caps int64
	var branchPatterns, pathPatterns, ipAllowlist []byte
	err := s.q.QueryRowContext(ctx, `
		SELECT id, space, issuer_type, issuer_id, capabilities, branch_patterns, path_patterns,
		       ip_allowlist, expires_at, revoked_at, created_at
		FROM access_tokens
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Space, &issuerType, &t.Issuer.ID, &caps,
		&branchPatterns, &pathPatterns, &ipAllowlist, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	t.Issuer.Type = types.PrincipalType(issuerType)
	t.Capabilities = types.Capabilities(caps)
	if err := jsonScan(branchPatterns, &t.BranchPatterns); err != nil {
		return nil, err
	}
	if err := jsonScan(pathPatterns, &t.PathPatterns); err != nil {
		return nil, err
	}
	if err := jsonScan(ipAllowlist, &t.IPAllowlist); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *queries) RevokeToken(ctx context.Context, id uuid.UUID, revokedAt int64) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE access_tokens SET revoked_at = $1 WHERE id = $2
	`, revokedAt, id)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.ErrTokenNotFound
	}
	return nil
}

// ============================================================================
// Idempotency Operations
// ============================================================================

func (s *queries) GetIdempotentResult(ctx context.Context, space uuid.UUID, op, key string) ([]byte, error) {
	var result []byte
	err := s.q.QueryRowContext(ctx, `
		SELECT result FROM idempotency_results
		WHERE space = $1 AND op = $2 AND key = $3
	`, space, op, key).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrIdempotencyMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotent result: %w", err)
	}
	return result, nil
}

func (s *queries) PutIdempotentResult(ctx context.Context, space uuid.UUID, op, key string, result []byte) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO idempotency_results (space, op, key, result, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (space, op, key) DO NOTHING
	`, space, op, key, result, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("put idempotent result: %w", err)
	}
	return nil
}
