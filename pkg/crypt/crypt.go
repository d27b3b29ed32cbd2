// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypt seals chunk payloads for at-rest storage with AES-256-GCM.
// Keys are supplied by the caller per space; key derivation and rotation are
// external concerns.
package crypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// KeySize is the required key length in bytes (AES-256)
const KeySize = 32

// KeyProvider supplies the encryption key for a space. Implementations are
// expected to front an external KMS or the product's key service.
type KeyProvider interface {
	Key(ctx context.Context, space uuid.UUID) ([]byte, error)
}

// StaticKeyProvider returns the same key for every space. Test and
// single-tenant use only.
type StaticKeyProvider []byte

func (p StaticKeyProvider) Key(ctx context.Context, space uuid.UUID) ([]byte, error) {
	if len(p) != KeySize {
		return nil, fmt.Errorf("static key must be %d bytes, got %d", KeySize, len(p))
	}
	return p, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func Open(key, payload []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(payload) < gcm.NonceSize() {
		return nil, fmt.Errorf("payload shorter than nonce")
	}

	nonce, ciphertext := payload[:gcm.NonceSize()], payload[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
