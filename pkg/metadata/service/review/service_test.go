// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package review_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/graph"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/review"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      *memory.DB
	graph   graph.Service
	reviews review.Service
	space   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mdb := memory.New()
	chunkSvc, err := chunk.NewService(chunk.Config{
		DB:      mdb,
		Backend: storage.NewMemory(),
		Keys:    crypt.StaticKeyProvider(bytes.Repeat([]byte{0x99}, crypt.KeySize)),
	})
	require.NoError(t, err)
	graphSvc, err := graph.NewService(graph.Config{DB: mdb, Chunks: chunkSvc})
	require.NoError(t, err)
	reviewSvc, err := review.NewService(review.Config{DB: mdb, Graph: graphSvc})
	require.NoError(t, err)

	res, err := graphSvc.CreateSpace(context.Background(), &graph.CreateSpaceRequest{Name: "vault", Owner: "alice"})
	require.NoError(t, err)
	return &fixture{db: mdb, graph: graphSvc, reviews: reviewSvc, space: res.Space.ID}
}

func (f *fixture) commit(t *testing.T, branch, path string, data []byte) *types.Snapshot {
	t.Helper()
	ctx := context.Background()
	fv, err := f.graph.PutFile(ctx, &graph.PutFileRequest{Space: f.space, Data: data})
	require.NoError(t, err)
	res, err := f.graph.Commit(ctx, &graph.CommitRequest{
		Space: f.space, Branch: branch, Author: "alice", Message: "update " + path,
		Changes: []types.PathChange{{Op: types.ChangeUpsert, Path: path, FileVersion: fv.ID}},
	})
	require.NoError(t, err)
	return res.Snapshot
}

func (f *fixture) fork(t *testing.T, name string) {
	t.Helper()
	_, err := f.graph.CreateBranch(context.Background(), &graph.CreateBranchRequest{
		Space: f.space, Name: name, FromBranch: "main",
	})
	require.NoError(t, err)
}

func (f *fixture) open(t *testing.T, source string) *types.Review {
	t.Helper()
	rev, err := f.reviews.Open(context.Background(), &review.OpenRequest{
		Space: f.space, Title: "merge " + source, Author: "bob",
		SourceBranch: source, TargetBranch: "main",
	})
	require.NoError(t, err)
	return rev
}

func TestReviewLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "draft")
	draftHead := f.commit(t, "draft", "notes.md", []byte("drafted"))

	rev := f.open(t, "draft")
	assert.Equal(t, uint64(1), rev.Number)
	assert.Equal(t, types.ReviewOpen, rev.Status)

	c, err := f.reviews.Comment(ctx, &review.CommentRequest{
		Space: f.space, Number: rev.Number, Author: "carol", Body: "looks good", Path: "notes.md", Line: 1,
	})
	require.NoError(t, err)
	assert.False(t, c.Resolved)

	approved, err := f.reviews.Approve(ctx, &review.ApproveRequest{Space: f.space, Number: rev.Number, Reviewer: "carol"})
	require.NoError(t, err)
	assert.Equal(t, types.ReviewApproved, approved.Status)

	// Main never moved since the fork, so the merge fast-forwards
	merged, err := f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "carol"})
	require.NoError(t, err)
	assert.True(t, merged.FastForward)
	assert.Equal(t, types.ReviewMerged, merged.Review.Status)
	assert.Equal(t, "carol", merged.Review.MergedBy)

	main, err := f.graph.GetBranch(ctx, f.space, "main")
	require.NoError(t, err)
	assert.Equal(t, merged.Snapshot.ID, *main.Head)
	assert.Contains(t, merged.Snapshot.Parents, draftHead.ID)
	assert.Equal(t, draftHead.TreeHash, merged.Snapshot.TreeHash)

	// Terminal states reject further transitions
	_, err = f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "carol"})
	assert.True(t, service.IsConflict(err))
	_, err = f.reviews.Comment(ctx, &review.CommentRequest{Space: f.space, Number: rev.Number, Author: "dave", Body: "late"})
	assert.True(t, service.IsConflict(err))
}

func TestThreeWayMergeCombinesIndependentChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "shared.txt", []byte("base"))
	f.fork(t, "feature")
	f.commit(t, "feature", "feature.txt", []byte("from feature"))
	mainHead := f.commit(t, "main", "mainline.txt", []byte("from main"))

	rev := f.open(t, "feature")
	merged, err := f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	require.NoError(t, err)
	assert.False(t, merged.FastForward)
	assert.Len(t, merged.Snapshot.Parents, 2)
	assert.Contains(t, merged.Snapshot.Parents, mainHead.ID)

	tree, err := f.graph.ReadTree(ctx, f.space, merged.Snapshot.ID)
	require.NoError(t, err)
	assert.Contains(t, tree, "shared.txt")
	assert.Contains(t, tree, "feature.txt")
	assert.Contains(t, tree, "mainline.txt")
}

func TestMergeConflictNamesPaths(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "config.yaml", []byte("original"))
	f.fork(t, "edit")
	f.commit(t, "edit", "config.yaml", []byte("edited on branch"))
	f.commit(t, "main", "config.yaml", []byte("edited on main"))

	rev := f.open(t, "edit")
	_, err := f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	require.Error(t, err)
	assert.True(t, service.IsMergeConflict(err))
	assert.Equal(t, []string{"config.yaml"}, service.ConflictPaths(err))

	// The review stays open for a follow-up commit
	got, err := f.reviews.Get(ctx, f.space, rev.Number)
	require.NoError(t, err)
	assert.Equal(t, types.ReviewOpen, got.Status)
}

func TestIdenticalChangesOnBothSidesMergeCleanly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "a.txt", []byte("base"))
	f.fork(t, "same")
	f.commit(t, "same", "a.txt", []byte("identical edit"))
	f.commit(t, "main", "a.txt", []byte("identical edit"))

	rev := f.open(t, "same")
	merged, err := f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	require.NoError(t, err)
	assert.False(t, merged.FastForward)
}

func TestProtectionGates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "draft")
	f.commit(t, "draft", "notes.md", []byte("drafted"))

	require.NoError(t, f.graph.SetBranchProtection(ctx, f.space, "main", true, types.ProtectionRules{
		RequiredApprovals:       2,
		RequireResolvedComments: true,
		RestrictMerge:           true,
	}))

	// Merges go through a guarded service over the same store: the
	// restricted-merge gate checks the actor's own grants, never anything
	// the caller claims about itself. CreateSpace made alice the owner.
	auth, err := access.NewAuthorizer(f.db)
	require.NoError(t, err)
	guarded, err := review.NewService(review.Config{DB: f.db, Graph: f.graph, Access: auth})
	require.NoError(t, err)
	owner := access.WithActor(ctx, access.Actor{
		Principal: types.Principal{Type: types.PrincipalUser, ID: "alice"},
	})

	rev := f.open(t, "draft")

	// Not enough approvals yet
	_, err = guarded.Merge(owner, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	assert.True(t, service.IsConflict(err))

	// The same reviewer approving twice counts once
	_, err = f.reviews.Approve(ctx, &review.ApproveRequest{Space: f.space, Number: rev.Number, Reviewer: "carol"})
	require.NoError(t, err)
	_, err = f.reviews.Approve(ctx, &review.ApproveRequest{Space: f.space, Number: rev.Number, Reviewer: "carol"})
	require.NoError(t, err)
	_, err = guarded.Merge(owner, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	assert.True(t, service.IsConflict(err))

	got, err := f.reviews.Approve(ctx, &review.ApproveRequest{Space: f.space, Number: rev.Number, Reviewer: "dave"})
	require.NoError(t, err)
	assert.Equal(t, types.ReviewApproved, got.Status)

	// An unresolved comment still blocks
	c, err := f.reviews.Comment(ctx, &review.CommentRequest{
		Space: f.space, Number: rev.Number, Author: "carol", Body: "typo here",
	})
	require.NoError(t, err)
	_, err = guarded.Merge(owner, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	assert.True(t, service.IsConflict(err))
	require.NoError(t, f.reviews.ResolveComment(ctx, f.space, c.ID))

	// An editor can write but holds no approve_reviews, so the restricted
	// merge refuses them even with every other gate satisfied
	mallory := types.Principal{Type: types.PrincipalUser, ID: "mallory"}
	require.NoError(t, f.db.PutMember(ctx, &types.Member{
		Space: f.space, Principal: mallory, Role: access.RoleEditor,
	}))
	_, err = guarded.Merge(access.WithActor(ctx, access.Actor{Principal: mallory}),
		&review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "mallory"})
	assert.True(t, service.IsPermissionDenied(err))

	merged, err := guarded.Merge(owner, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	require.NoError(t, err)
	assert.Equal(t, types.ReviewMerged, merged.Review.Status)
}

func TestFastForwardRecordsMergeSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	mainHead := f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "draft")
	draftHead := f.commit(t, "draft", "notes.md", []byte("drafted"))

	rev := f.open(t, "draft")
	merged, err := f.reviews.Merge(ctx, &review.MergeRequest{Space: f.space, Number: rev.Number, Merger: "alice"})
	require.NoError(t, err)
	assert.True(t, merged.FastForward)

	// Even a fast-forward mints its own snapshot naming both heads
	assert.NotEqual(t, draftHead.ID, merged.Snapshot.ID)
	assert.Equal(t, []uuid.UUID{mainHead.ID, draftHead.ID}, merged.Snapshot.Parents)
	require.NotNil(t, merged.Review.MergeCommit)
	assert.Equal(t, merged.Snapshot.ID, *merged.Review.MergeCommit)

	// The recorded tree is exactly the source head's tree
	tree, err := f.graph.ReadTree(ctx, f.space, merged.Snapshot.ID)
	require.NoError(t, err)
	sourceTree, err := f.graph.ReadTree(ctx, f.space, draftHead.ID)
	require.NoError(t, err)
	assert.Equal(t, sourceTree, tree)

	main, err := f.graph.GetBranch(ctx, f.space, "main")
	require.NoError(t, err)
	assert.Equal(t, merged.Snapshot.ID, *main.Head)
}

// headStealingDB lands a rival head update right before the next
// transaction runs, standing in for a commit racing the merge.
type headStealingDB struct {
	*memory.DB
	space  uuid.UUID
	branch string
	armed  bool
}

func (d *headStealingDB) WithTx(ctx context.Context, fn func(tx db.TxStore) error) error {
	if d.armed {
		d.armed = false
		b, err := d.DB.GetBranch(ctx, d.space, d.branch)
		if err != nil {
			return err
		}
		rival := uuid.New()
		if err := d.DB.UpdateBranchHead(ctx, d.space, d.branch, b.Head, &rival); err != nil {
			return err
		}
	}
	return d.DB.WithTx(ctx, fn)
}

func TestMergeLosesRaceToConcurrentCommit(t *testing.T) {
	t.Parallel()

	stealer := &headStealingDB{DB: memory.New()}
	chunkSvc, err := chunk.NewService(chunk.Config{
		DB:      stealer,
		Backend: storage.NewMemory(),
		Keys:    crypt.StaticKeyProvider(bytes.Repeat([]byte{0x99}, crypt.KeySize)),
	})
	require.NoError(t, err)
	graphSvc, err := graph.NewService(graph.Config{DB: stealer, Chunks: chunkSvc})
	require.NoError(t, err)
	reviewSvc, err := review.NewService(review.Config{DB: stealer, Graph: graphSvc})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := graphSvc.CreateSpace(ctx, &graph.CreateSpaceRequest{Name: "vault", Owner: "alice"})
	require.NoError(t, err)
	space := res.Space.ID

	commit := func(branch, path string, data []byte) {
		fv, err := graphSvc.PutFile(ctx, &graph.PutFileRequest{Space: space, Data: data})
		require.NoError(t, err)
		_, err = graphSvc.Commit(ctx, &graph.CommitRequest{
			Space: space, Branch: branch, Author: "alice", Message: "update " + path,
			Changes: []types.PathChange{{Op: types.ChangeUpsert, Path: path, FileVersion: fv.ID}},
		})
		require.NoError(t, err)
	}
	commit("main", "readme.md", []byte("v1"))
	_, err = graphSvc.CreateBranch(ctx, &graph.CreateBranchRequest{Space: space, Name: "draft", FromBranch: "main"})
	require.NoError(t, err)
	commit("draft", "notes.md", []byte("drafted"))

	rev, err := reviewSvc.Open(ctx, &review.OpenRequest{
		Space: space, Title: "merge draft", Author: "bob",
		SourceBranch: "draft", TargetBranch: "main",
	})
	require.NoError(t, err)

	// Another commit lands on main between the merge's head read and its
	// compare-and-swap
	stealer.space = space
	stealer.branch = "main"
	stealer.armed = true

	_, err = reviewSvc.Merge(ctx, &review.MergeRequest{Space: space, Number: rev.Number, Merger: "alice"})
	assert.True(t, service.IsConflict(err), "expected conflict, got %v", err)

	// The losing merge left the review open and untouched
	got, err := reviewSvc.Get(ctx, space, rev.Number)
	require.NoError(t, err)
	assert.Equal(t, types.ReviewOpen, got.Status)
	assert.Nil(t, got.MergeCommit)
}

func TestCloseWithoutMerging(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "abandoned")
	f.commit(t, "abandoned", "junk.txt", []byte("nope"))

	rev := f.open(t, "abandoned")
	closed, err := f.reviews.Close(ctx, f.space, rev.Number)
	require.NoError(t, err)
	assert.Equal(t, types.ReviewClosed, closed.Status)

	// Main is untouched
	main, err := f.graph.GetBranch(ctx, f.space, "main")
	require.NoError(t, err)
	tree, err := f.graph.ReadTree(ctx, f.space, *main.Head)
	require.NoError(t, err)
	assert.NotContains(t, tree, "junk.txt")

	_, err = f.reviews.Close(ctx, f.space, rev.Number)
	assert.True(t, service.IsConflict(err))
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reviews.Open(ctx, &review.OpenRequest{
		Space: f.space, Title: "self", Author: "bob", SourceBranch: "main", TargetBranch: "main",
	})
	assert.Equal(t, service.ErrCodeValidation, service.CodeOf(err))

	_, err = f.reviews.Open(ctx, &review.OpenRequest{
		Space: f.space, Title: "ghost", Author: "bob", SourceBranch: "ghost", TargetBranch: "main",
	})
	assert.True(t, service.IsNotFound(err))

	// A source with no commits has nothing to review
	_, err = f.graph.CreateBranch(ctx, &graph.CreateBranchRequest{Space: f.space, Name: "empty"})
	require.NoError(t, err)
	_, err = f.reviews.Open(ctx, &review.OpenRequest{
		Space: f.space, Title: "nothing", Author: "bob", SourceBranch: "empty", TargetBranch: "main",
	})
	assert.Equal(t, service.ErrCodeValidation, service.CodeOf(err))
}

func TestListReviews(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "one")
	f.commit(t, "one", "one.txt", []byte("1"))
	f.fork(t, "two")
	f.commit(t, "two", "two.txt", []byte("2"))

	first := f.open(t, "one")
	second := f.open(t, "two")
	assert.Equal(t, first.Number+1, second.Number)

	_, err := f.reviews.Close(ctx, f.space, first.Number)
	require.NoError(t, err)

	all, err := f.reviews.List(ctx, f.space, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.Number, all[0].Number, "newest first")

	open, err := f.reviews.List(ctx, f.space, types.ReviewOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.Number, open[0].Number)
}

func TestMergeIdempotencyReplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.commit(t, "main", "readme.md", []byte("v1"))
	f.fork(t, "draft")
	f.commit(t, "draft", "notes.md", []byte("drafted"))

	rev := f.open(t, "draft")
	req := &review.MergeRequest{
		Space: f.space, Number: rev.Number, Merger: "alice", IdempotencyKey: "merge-retry",
	}
	first, err := f.reviews.Merge(ctx, req)
	require.NoError(t, err)

	// The retry replays even though the review is now terminal
	second, err := f.reviews.Merge(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)
	assert.Equal(t, first.FastForward, second.FastForward)
}
