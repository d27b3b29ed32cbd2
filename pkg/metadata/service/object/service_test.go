// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package object_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/object"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (object.Service, *memory.DB) {
	t.Helper()
	mdb := memory.New()
	chunkSvc, err := chunk.NewService(chunk.Config{
		DB:      mdb,
		Backend: storage.NewMemory(),
		Keys:    crypt.StaticKeyProvider(bytes.Repeat([]byte{0x42}, crypt.KeySize)),
	})
	require.NoError(t, err)
	svc, err := object.NewService(object.Config{DB: mdb, Chunks: chunkSvc})
	require.NoError(t, err)
	return svc, mdb
}

func farFuture() time.Time {
	return time.Now().Add(time.Hour)
}

func TestPutGetObject(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	put, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "readme.md",
		Data: []byte("hello vault"), MimeType: "text/markdown",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), put.Version)
	assert.NotEmpty(t, put.ETag)

	got, err := svc.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "readme.md"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello vault"), got.Data)
	assert.Equal(t, "text/markdown", got.Object.MimeType)
	assert.True(t, got.Object.IsCurrent)
}

func TestVersionsAppendAndPin(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	for i, content := range []string{"v1 content", "v2 content", "v3 content"} {
		put, err := svc.PutObject(ctx, &object.PutObjectRequest{
			Space: space, Bucket: "docs", Key: "note.txt", Data: []byte(content),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), put.Version)
	}

	current, err := svc.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "note.txt"})
	require.NoError(t, err)
	assert.Equal(t, []byte("v3 content"), current.Data)

	pinned, err := svc.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "note.txt", Version: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte("v2 content"), pinned.Data)
}

func TestPutEnforcesExpectedVersion(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	_, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "shared.txt", Data: []byte("base"),
	})
	require.NoError(t, err)

	// Correct expectation succeeds
	_, err = svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "shared.txt", Data: []byte("update"),
		ExpectedVersion: 1, EnforceVersion: true,
	})
	require.NoError(t, err)

	// Stale expectation conflicts
	_, err = svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "shared.txt", Data: []byte("lost update"),
		ExpectedVersion: 1, EnforceVersion: true,
	})
	assert.True(t, service.IsConflict(err), "expected conflict, got %v", err)

	// Create-only expectation on an existing key conflicts
	_, err = svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "shared.txt", Data: []byte("create"),
		ExpectedVersion: 0, EnforceVersion: true,
	})
	assert.True(t, service.IsConflict(err))
}

func TestConflictReleasesReferences(t *testing.T) {
	t.Parallel()

	svc, mdb := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	_, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "k", Data: []byte("base"),
	})
	require.NoError(t, err)

	_, err = svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "k", Data: []byte("conflicting write"),
		ExpectedVersion: 7, EnforceVersion: true,
	})
	require.True(t, service.IsConflict(err))

	// The failed write's chunks must not hold references
	chunks, err := mdb.GetZeroRefChunks(ctx, farFuture(), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestDeleteTombstones(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	_, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "gone.txt", Data: []byte("content"),
	})
	require.NoError(t, err)

	del, err := svc.DeleteObject(ctx, &object.DeleteObjectRequest{Space: space, Bucket: "docs", Key: "gone.txt"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), del.Version)

	// Current read fails, pinned read still works
	_, err = svc.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "gone.txt"})
	assert.True(t, service.IsNotFound(err))

	pinned, err := svc.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "gone.txt", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), pinned.Data)

	// Deleting again is a no-op
	_, err = svc.DeleteObject(ctx, &object.DeleteObjectRequest{Space: space, Bucket: "docs", Key: "gone.txt"})
	assert.NoError(t, err)
}

func TestDeleteMissingObject(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.DeleteObject(context.Background(), &object.DeleteObjectRequest{
		Space: uuid.New(), Bucket: "docs", Key: "never-existed",
	})
	assert.True(t, service.IsNotFound(err))
}

func TestListObjects(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	for _, key := range []string{"photos/a.jpg", "photos/b.jpg", "docs/c.txt"} {
		_, err := svc.PutObject(ctx, &object.PutObjectRequest{
			Space: space, Bucket: "vault", Key: key, Data: []byte(key),
		})
		require.NoError(t, err)
	}
	_, err := svc.DeleteObject(ctx, &object.DeleteObjectRequest{Space: space, Bucket: "vault", Key: "photos/b.jpg"})
	require.NoError(t, err)

	list, err := svc.ListObjects(ctx, &object.ListObjectsRequest{Space: space, Bucket: "vault", Prefix: "photos/"})
	require.NoError(t, err)
	require.Len(t, list.Objects, 1)
	assert.Equal(t, "photos/a.jpg", list.Objects[0].Key)

	all, err := svc.ListObjects(ctx, &object.ListObjectsRequest{Space: space, Bucket: "vault"})
	require.NoError(t, err)
	assert.Len(t, all.Objects, 2)
}

func TestPutObjectIdempotencyReplay(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	first, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "idem.txt", Data: []byte("once"),
		IdempotencyKey: "put-retry",
	})
	require.NoError(t, err)

	second, err := svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "docs", Key: "idem.txt", Data: []byte("once"),
		IdempotencyKey: "put-retry",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// No second version appeared
	head, err := svc.HeadObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "docs", Key: "idem.txt"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Object.Version)
}

func TestAccessEnforcement(t *testing.T) {
	t.Parallel()

	mdb := memory.New()
	chunkSvc, err := chunk.NewService(chunk.Config{
		DB:      mdb,
		Backend: storage.NewMemory(),
		Keys:    crypt.StaticKeyProvider(bytes.Repeat([]byte{0x42}, crypt.KeySize)),
	})
	require.NoError(t, err)
	auth, err := access.NewAuthorizer(mdb)
	require.NoError(t, err)
	svc, err := object.NewService(object.Config{DB: mdb, Chunks: chunkSvc, Access: auth})
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()
	writer := types.Principal{Type: types.PrincipalUser, ID: "casey"}
	require.NoError(t, mdb.PutMember(ctx, &types.Member{
		Space:        space,
		Principal:    writer,
		Capabilities: types.Capabilities(0).With(types.CapRead).With(types.CapWrite),
		PathPatterns: []string{"docs/*"},
	}))

	// No actor on the context at all
	_, err = svc.PutObject(ctx, &object.PutObjectRequest{
		Space: space, Bucket: "vault", Key: "docs/plan.txt", Data: []byte("x"),
	})
	assert.True(t, service.IsPermissionDenied(err))

	actorCtx := access.WithActor(ctx, access.Actor{Principal: writer})
	_, err = svc.PutObject(actorCtx, &object.PutObjectRequest{
		Space: space, Bucket: "vault", Key: "docs/plan.txt", Data: []byte("scoped write"),
	})
	require.NoError(t, err)

	// The grant covers docs/* only
	_, err = svc.PutObject(actorCtx, &object.PutObjectRequest{
		Space: space, Bucket: "vault", Key: "photos/img.png", Data: []byte("nope"),
	})
	assert.True(t, service.IsPermissionDenied(err))

	// Write does not imply delete
	_, err = svc.DeleteObject(actorCtx, &object.DeleteObjectRequest{
		Space: space, Bucket: "vault", Key: "docs/plan.txt",
	})
	assert.True(t, service.IsPermissionDenied(err))

	got, err := svc.GetObject(actorCtx, &object.GetObjectRequest{Space: space, Bucket: "vault", Key: "docs/plan.txt"})
	require.NoError(t, err)
	assert.Equal(t, []byte("scoped write"), got.Data)
}
