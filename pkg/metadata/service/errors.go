// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the shared domain error taxonomy for the vault
// services. Every service entry point returns either nil or an *Error so
// callers can switch on the code without knowing which layer failed.
package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a domain-level error code
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota

	// ErrCodeNotFound - the referenced entity does not exist
	ErrCodeNotFound

	// ErrCodeConflict - optimistic concurrency violation: an expected
	// version or branch head no longer matches
	ErrCodeConflict

	// ErrCodeQuotaExceeded - a write would exceed the space's storage quota
	ErrCodeQuotaExceeded

	// ErrCodePermissionDenied - the principal lacks the required capability
	ErrCodePermissionDenied

	// ErrCodeCorrupt - retrieved content failed digest verification
	ErrCodeCorrupt

	// ErrCodeMergeConflict - a three-way merge found concurrent edits;
	// Paths carries the conflicting paths
	ErrCodeMergeConflict

	// ErrCodeExpired - the referenced entity passed its expiry
	ErrCodeExpired

	// ErrCodeValidation - the request itself is malformed
	ErrCodeValidation

	// ErrCodeInternal - unexpected downstream failure
	ErrCodeInternal
)

// Error represents a domain-level error
type Error struct {
	Code    ErrorCode
	Message string
	Paths   []string // conflicting paths, set for ErrCodeMergeConflict
	Err     error
}

func (e *Error) Error() string {
	if len(e.Paths) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Paths, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error constructors

func NewNotFoundError(resource string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func NewConflictError(msg string) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

func NewQuotaExceededError(msg string) *Error {
	return &Error{
		Code:    ErrCodeQuotaExceeded,
		Message: msg,
	}
}

func NewPermissionDeniedError() *Error {
	return &Error{
		Code:    ErrCodePermissionDenied,
		Message: "permission denied",
	}
}

func NewCorruptError(msg string) *Error {
	return &Error{
		Code:    ErrCodeCorrupt,
		Message: msg,
	}
}

func NewMergeConflictError(paths []string) *Error {
	return &Error{
		Code:    ErrCodeMergeConflict,
		Message: "merge conflict",
		Paths:   paths,
	}
}

func NewExpiredError(resource string) *Error {
	return &Error{
		Code:    ErrCodeExpired,
		Message: fmt.Sprintf("%s expired", resource),
	}
}

func NewValidationError(msg string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

func NewInternalError(err error) *Error {
	return &Error{
		Code:    ErrCodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// CodeOf extracts the domain code from any error in the chain
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeNone
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict checks if an error is an optimistic concurrency conflict
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsQuotaExceeded checks if an error is a quota error
func IsQuotaExceeded(err error) bool {
	return CodeOf(err) == ErrCodeQuotaExceeded
}

// IsPermissionDenied checks if an error is an access denial
func IsPermissionDenied(err error) bool {
	return CodeOf(err) == ErrCodePermissionDenied
}

// IsCorrupt checks if an error is a digest verification failure
func IsCorrupt(err error) bool {
	return CodeOf(err) == ErrCodeCorrupt
}

// IsMergeConflict checks if an error is a merge conflict
func IsMergeConflict(err error) bool {
	return CodeOf(err) == ErrCodeMergeConflict
}

// IsExpired checks if an error is an expiry error
func IsExpired(err error) bool {
	return CodeOf(err) == ErrCodeExpired
}

// ConflictPaths returns the conflicting paths of a merge conflict, or nil
func ConflictPaths(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeMergeConflict {
		return e.Paths
	}
	return nil
}
