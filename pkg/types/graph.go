// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Space is a tenant-scoped versioned namespace, analogous to a repository.
// A space owns its branches, snapshots, trees, file versions, reviews and
// members.
type Space struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"` // principal ID supplied by the identity provider
	CreatedAt int64     `json:"created_at"`
}

// ProtectionRules are merge gates attached to a target branch.
type ProtectionRules struct {
	RequiredApprovals       int  `json:"required_approvals,omitempty"`
	RequireResolvedComments bool `json:"require_resolved_comments,omitempty"`
	RestrictMerge           bool `json:"restrict_merge,omitempty"` // merge requires ApproveReviews on the branch
}

// Branch is a named, mutable pointer to a snapshot - the only mutable edge
// in the version graph. Head updates go through compare-and-swap.
type Branch struct {
	Space      uuid.UUID       `json:"space"`
	Name       string          `json:"name"`
	Head       *uuid.UUID      `json:"head,omitempty"` // nil until first commit
	Protected  bool            `json:"protected"`
	Protection ProtectionRules `json:"protection,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// Snapshot is an immutable, parent-linked commit of a full path-to-content
// mapping. Merge snapshots carry two parents. Snapshots form an append-only
// DAG indexed by ID; they outlive branch deletion while reachable.
type Snapshot struct {
	ID        uuid.UUID   `json:"id"`
	Space     uuid.UUID   `json:"space"`
	Branch    string      `json:"branch"` // branch at creation, informational
	Parents   []uuid.UUID `json:"parents,omitempty"`
	TreeHash  string      `json:"tree_hash"`
	Author    string      `json:"author"`
	Message   string      `json:"message,omitempty"`
	CreatedAt int64       `json:"created_at"`
}

// EntryType distinguishes files from directories in a tree
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// TreeEntry is one path of the materialized tree for a snapshot.
type TreeEntry struct {
	Snapshot    uuid.UUID `json:"snapshot"`
	Path        string    `json:"path"`
	Type        EntryType `json:"type"`
	FileVersion uuid.UUID `json:"file_version,omitempty"` // zero for directories
	ContentHash string    `json:"content_hash,omitempty"`
	Mode        uint32    `json:"mode,omitempty"`
}

// Tree is a materialized path-to-entry mapping for one snapshot.
type Tree map[string]TreeEntry

// Hash computes the Merkle-style tree hash: SHA-256 over the sorted
// (path, content_hash, mode) tuples. It is a pure function of the final
// mapping, independent of how many changes were applied or in what order.
func (t Tree) Hash() string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := Sha256PoolGetHasher()
	for _, p := range paths {
		e := t[p]
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(e.ContentHash))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(uint64(e.Mode), 8)))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	Sha256PoolPutHasher(h)
	return hex.EncodeToString(sum)
}

// Clone returns a shallow copy of the tree, safe to overlay changes onto.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for p, e := range t {
		out[p] = e
	}
	return out
}

// ChangeOp is the kind of a path change
type ChangeOp string

const (
	ChangeUpsert ChangeOp = "upsert"
	ChangeDelete ChangeOp = "delete"
)

// PathChange is one path-level difference between two trees, or one entry of
// a commit's change set.
type PathChange struct {
	Op          ChangeOp  `json:"op"`
	Path        string    `json:"path"`
	Type        EntryType `json:"type,omitempty"`
	FileVersion uuid.UUID `json:"file_version,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	Mode        uint32    `json:"mode,omitempty"`
}
