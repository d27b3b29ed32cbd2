// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"sort"

	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
)

// mergeBase finds the nearest common ancestor of two snapshots by walking
// the parent DAG breadth-first. Returns nil when the histories are
// unrelated.
func (s *serviceImpl) mergeBase(ctx context.Context, space, a, b uuid.UUID) (*uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	queue := []uuid.UUID{a}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		snap, err := s.db.GetSnapshot(ctx, space, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, snap.Parents...)
	}

	queue = []uuid.UUID{b}
	visited := make(map[uuid.UUID]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if seen[id] {
			base := id
			return &base, nil
		}
		snap, err := s.db.GetSnapshot(ctx, space, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, snap.Parents...)
	}
	return nil, nil
}

// entryChanged reports whether a path differs between two trees, counting
// presence, content, type and mode.
func entryChanged(from, to types.Tree, path string) bool {
	a, okA := from[path]
	b, okB := to[path]
	if okA != okB {
		return true
	}
	if !okA {
		return false
	}
	return a.ContentHash != b.ContentHash || a.Type != b.Type || a.Mode != b.Mode
}

func entriesEqual(a, b types.TreeEntry) bool {
	return a.ContentHash == b.ContentHash && a.Type == b.Type && a.Mode == b.Mode
}

// threeWayMerge combines source and target against their common base. A
// path changed on only one side takes that side; a path changed identically
// on both sides takes either; a path changed differently on both sides is a
// conflict. Returns the merged tree and the sorted conflicting paths.
func threeWayMerge(base, source, target types.Tree) (types.Tree, []string) {
	paths := make(map[string]bool)
	for p := range base {
		paths[p] = true
	}
	for p := range source {
		paths[p] = true
	}
	for p := range target {
		paths[p] = true
	}

	merged := make(types.Tree)
	var conflicts []string
	for p := range paths {
		changedSource := entryChanged(base, source, p)
		changedTarget := entryChanged(base, target, p)

		switch {
		case !changedSource && !changedTarget:
			if e, ok := base[p]; ok {
				merged[p] = e
			}
		case changedSource && !changedTarget:
			if e, ok := source[p]; ok {
				merged[p] = e
			}
		case !changedSource && changedTarget:
			if e, ok := target[p]; ok {
				merged[p] = e
			}
		default:
			se, okS := source[p]
			te, okT := target[p]
			if okS == okT && (!okS || entriesEqual(se, te)) {
				// Both sides made the same change
				if okS {
					merged[p] = se
				}
				continue
			}
			conflicts = append(conflicts, p)
		}
	}
	sort.Strings(conflicts)
	return merged, conflicts
}
