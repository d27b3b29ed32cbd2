// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package multipart_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/access"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/multipart"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/object"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      *memory.DB
	chunks  chunk.Service
	uploads multipart.Service
	objects object.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mdb := memory.New()
	chunkSvc, err := chunk.NewService(chunk.Config{
		DB:      mdb,
		Backend: storage.NewMemory(),
		Keys:    crypt.StaticKeyProvider(bytes.Repeat([]byte{0x42}, crypt.KeySize)),
	})
	require.NoError(t, err)
	uploadSvc, err := multipart.NewService(multipart.Config{DB: mdb, Chunks: chunkSvc})
	require.NoError(t, err)
	objectSvc, err := object.NewService(object.Config{DB: mdb, Chunks: chunkSvc})
	require.NoError(t, err)
	return &fixture{db: mdb, chunks: chunkSvc, uploads: uploadSvc, objects: objectSvc}
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestMultipartAssembly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{
		Space: space, Bucket: "videos", Key: "trip.mp4", MimeType: "video/mp4",
	})
	require.NoError(t, err)

	partData := [][]byte{
		randomData(t, 2*1024*1024),
		randomData(t, 2*1024*1024),
		randomData(t, 512*1024),
	}

	// Parts uploaded out of order
	var completed []multipart.CompletedPart
	etags := make([]string, len(partData))
	for _, i := range []int{2, 0, 1} {
		res, err := f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{
			UploadID: init.UploadID, PartNumber: i + 1, Data: partData[i],
		})
		require.NoError(t, err)
		etags[i] = res.ETag
	}
	for i := range partData {
		completed = append(completed, multipart.CompletedPart{PartNumber: i + 1, ETag: etags[i]})
	}

	done, err := f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID, Parts: completed,
	})
	require.NoError(t, err)

	var want []byte
	for _, p := range partData {
		want = append(want, p...)
	}
	assert.Equal(t, uint64(len(want)), done.Size)

	got, err := f.objects.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "videos", Key: "trip.mp4"})
	require.NoError(t, err)
	assert.Equal(t, want, got.Data)
	assert.Equal(t, "video/mp4", got.Object.MimeType)

	// The upload record is gone
	_, err = f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID, Parts: completed,
	})
	assert.True(t, service.IsNotFound(err))
}

func TestCompleteValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{Space: space, Bucket: "b", Key: "k"})
	require.NoError(t, err)

	p1, err := f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("one")})
	require.NoError(t, err)
	p3, err := f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 3, Data: []byte("three")})
	require.NoError(t, err)

	tests := []struct {
		name  string
		parts []multipart.CompletedPart
	}{
		{"empty", nil},
		{"gap in numbering", []multipart.CompletedPart{
			{PartNumber: 1, ETag: p1.ETag}, {PartNumber: 3, ETag: p3.ETag},
		}},
		{"wrong etag", []multipart.CompletedPart{
			{PartNumber: 1, ETag: "deadbeef"},
		}},
		{"missing part", []multipart.CompletedPart{
			{PartNumber: 1, ETag: p1.ETag}, {PartNumber: 2, ETag: "whatever"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uploads.Complete(ctx, &multipart.CompleteRequest{
				Space: space, UploadID: init.UploadID, Parts: tt.parts,
			})
			require.Error(t, err)
			assert.Equal(t, service.ErrCodeValidation, service.CodeOf(err))
		})
	}
}

func TestPartReuploadReplaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{Space: space, Bucket: "b", Key: "k"})
	require.NoError(t, err)

	_, err = f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("first try")})
	require.NoError(t, err)
	second, err := f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("second try")})
	require.NoError(t, err)

	done, err := f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID,
		Parts: []multipart.CompletedPart{{PartNumber: 1, ETag: second.ETag}},
	})
	require.NoError(t, err)

	got, err := f.objects.GetObject(ctx, &object.GetObjectRequest{Space: space, Bucket: "b", Key: "k", Version: done.Version})
	require.NoError(t, err)
	assert.Equal(t, []byte("second try"), got.Data)

	// The replaced part's chunks carry no references
	zero, err := f.db.GetZeroRefChunks(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, zero)
}

func TestAbortReleasesReferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{Space: space, Bucket: "b", Key: "k"})
	require.NoError(t, err)
	_, err = f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: randomData(t, 128*1024)})
	require.NoError(t, err)

	require.NoError(t, f.uploads.Abort(ctx, init.UploadID))

	zero, err := f.db.GetZeroRefChunks(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, zero)

	_, err = f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 2, Data: []byte("late")})
	assert.True(t, service.IsNotFound(err))
}

func TestExpiredUploadRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{
		Space: space, Bucket: "b", Key: "k", TTL: time.Nanosecond,
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("late")})
	assert.True(t, service.IsExpired(err), "expected expired error, got %v", err)

	_, err = f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID,
		Parts: []multipart.CompletedPart{{PartNumber: 1, ETag: "x"}},
	})
	assert.True(t, service.IsExpired(err))
}

func TestUploadAccessEnforcement(t *testing.T) {
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
	svc, err := multipart.NewService(multipart.Config{DB: mdb, Chunks: chunkSvc, Access: auth})
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()
	writer := types.Principal{Type: types.PrincipalUser, ID: "casey"}
	require.NoError(t, mdb.PutMember(ctx, &types.Member{
		Space: space, Principal: writer, Role: access.RoleEditor,
	}))
	actorCtx := access.WithActor(ctx, access.Actor{Principal: writer})

	init, err := svc.Initiate(actorCtx, &multipart.InitiateRequest{Space: space, Bucket: "b", Key: "k"})
	require.NoError(t, err)

	// An anonymous caller is refused before anything about the upload
	// leaks, and an unknown upload ID answers the same way
	_, err = svc.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("x")})
	assert.True(t, service.IsPermissionDenied(err))
	_, err = svc.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: "no-such-upload", PartNumber: 1, Data: []byte("x")})
	assert.True(t, service.IsPermissionDenied(err))
	assert.True(t, service.IsPermissionDenied(svc.Abort(ctx, "no-such-upload")))

	_, err = svc.UploadPart(actorCtx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("payload")})
	require.NoError(t, err)
	require.NoError(t, svc.Abort(actorCtx, init.UploadID))
}

func TestCompleteIdempotencyReplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	space := uuid.New()

	init, err := f.uploads.Initiate(ctx, &multipart.InitiateRequest{Space: space, Bucket: "b", Key: "k"})
	require.NoError(t, err)
	part, err := f.uploads.UploadPart(ctx, &multipart.UploadPartRequest{UploadID: init.UploadID, PartNumber: 1, Data: []byte("payload")})
	require.NoError(t, err)

	parts := []multipart.CompletedPart{{PartNumber: 1, ETag: part.ETag}}
	first, err := f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID, Parts: parts, IdempotencyKey: "complete-retry",
	})
	require.NoError(t, err)

	// The retry replays even though the upload record is gone
	second, err := f.uploads.Complete(ctx, &multipart.CompleteRequest{
		Space: space, UploadID: init.UploadID, Parts: parts, IdempotencyKey: "complete-retry",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
