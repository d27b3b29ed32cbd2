// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// jsonValue marshals v for a JSONB column
func jsonValue(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return buf, nil
}

// jsonScan unmarshals a JSONB column into v, tolerating NULL
func jsonScan(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}

// nullUUID converts an optional UUID pointer for a nullable column
func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// scanNullUUID converts a nullable UUID column back to a pointer
func scanNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse uuid column: %w", err)
	}
	return &id, nil
}
