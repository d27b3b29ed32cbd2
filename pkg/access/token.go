// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer mints and verifies scoped access tokens. The signed JWT only
// carries the token ID; capabilities, scope patterns and revocation state
// live in the stored record so a revoke takes effect on the next check.
type TokenIssuer struct {
	store  db.AccessStore
	secret []byte
}

// NewTokenIssuer creates a TokenIssuer signing with the given HMAC secret
func NewTokenIssuer(store db.AccessStore, secret []byte) (*TokenIssuer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}
	return &TokenIssuer{store: store, secret: secret}, nil
}

type tokenClaims struct {
	Space string `json:"space"`
	jwt.RegisteredClaims
}

// Issue stores the token record and returns the signed bearer string.
// A caller can only delegate capabilities it holds itself; issuerCaps bounds
// the grant.
func (ti *TokenIssuer) Issue(ctx context.Context, t *types.AccessToken, issuerCaps types.Capabilities) (string, error) {
	t.Capabilities = t.Capabilities.Intersect(issuerCaps)
	if t.Capabilities == 0 {
		return "", ErrPermissionDenied
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := ti.store.PutToken(ctx, t); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	claims := tokenClaims{
		Space: t.Space.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       t.ID.String(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if t.ExpiresAt > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Unix(0, t.ExpiresAt))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a bearer string and returns the live token record.
// remoteIP is matched against the token's allowlist when one is set; pass
// an empty string to skip the check (trusted in-process callers).
func (ti *TokenIssuer) Verify(ctx context.Context, bearer, remoteIP string) (*types.AccessToken, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(bearer, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	t, err := ti.store.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load token: %w", err)
	}

	if t.RevokedAt > 0 {
		return nil, ErrTokenRevoked
	}
	if t.ExpiresAt > 0 && time.Now().UnixNano() > t.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if len(t.IPAllowlist) > 0 && remoteIP != "" {
		if !ipAllowed(t.IPAllowlist, remoteIP) {
			return nil, ErrPermissionDenied
		}
	}
	return t, nil
}

// Revoke marks a token revoked. Verification fails from this point on.
func (ti *TokenIssuer) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := ti.store.RevokeToken(ctx, id, time.Now().UnixNano()); err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// AuthorizeToken checks a verified token record against a request. Token
// scope is evaluated the same way as a membership grant.
func AuthorizeToken(t *types.AccessToken, req Request) error {
	if t.Space != req.Space {
		return ErrPermissionDenied
	}
	if !t.Capabilities.Has(req.Capability) {
		return ErrPermissionDenied
	}
	if req.Branch != "" && !MatchAny(t.BranchPatterns, req.Branch) {
		return ErrPermissionDenied
	}
	if req.Path != "" && !MatchAny(t.PathPatterns, req.Path) {
		return ErrPermissionDenied
	}
	return nil
}

func ipAllowed(allowlist []string, remoteIP string) bool {
	addr, err := netip.ParseAddr(remoteIP)
	if err != nil {
		return false
	}
	for _, entry := range allowlist {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if single, err := netip.ParseAddr(entry); err == nil && single == addr {
			return true
		}
	}
	return false
}
