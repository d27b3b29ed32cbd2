// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func entry(path, hash string) types.TreeEntry {
	return types.TreeEntry{Path: path, Type: types.EntryFile, ContentHash: hash, FileVersion: uuid.Nil}
}

func TestDiffTrees(t *testing.T) {
	t.Parallel()

	from := types.Tree{
		"kept.txt":    entry("kept.txt", "aaa"),
		"changed.txt": entry("changed.txt", "bbb"),
		"removed.txt": entry("removed.txt", "ccc"),
	}
	to := types.Tree{
		"kept.txt":    entry("kept.txt", "aaa"),
		"changed.txt": entry("changed.txt", "ddd"),
		"added.txt":   entry("added.txt", "eee"),
	}

	want := []types.PathChange{
		{Op: types.ChangeUpsert, Path: "added.txt", Type: types.EntryFile, ContentHash: "eee"},
		{Op: types.ChangeUpsert, Path: "changed.txt", Type: types.EntryFile, ContentHash: "ddd"},
		{Op: types.ChangeDelete, Path: "removed.txt"},
	}
	got := DiffTrees(from, to)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffTrees mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffTreesEmpty(t *testing.T) {
	t.Parallel()

	if got := DiffTrees(types.Tree{}, types.Tree{}); len(got) != 0 {
		t.Errorf("expected no changes, got %v", got)
	}

	to := types.Tree{"only.txt": entry("only.txt", "fff")}
	want := []types.PathChange{
		{Op: types.ChangeUpsert, Path: "only.txt", Type: types.EntryFile, ContentHash: "fff"},
	}
	if diff := cmp.Diff(want, DiffTrees(types.Tree{}, to)); diff != "" {
		t.Errorf("DiffTrees mismatch (-want +got):\n%s", diff)
	}
}
