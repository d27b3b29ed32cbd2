// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package chunk_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service"
	"github.com/C-0711/Vaultclaw/pkg/metadata/service/chunk"
	"github.com/C-0711/Vaultclaw/pkg/quota"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() crypt.StaticKeyProvider {
	return crypt.StaticKeyProvider(bytes.Repeat([]byte{0x42}, crypt.KeySize))
}

func newTestService(t *testing.T) (chunk.Service, *memory.DB, *storage.Memory) {
	t.Helper()
	mdb := memory.New()
	backend := storage.NewMemory()
	svc, err := chunk.NewService(chunk.Config{
		DB:      mdb,
		Backend: backend,
		Keys:    testKey(),
	})
	require.NoError(t, err)
	return svc, mdb, backend
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 3*1024*1024)

	put, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), put.Size)
	assert.Equal(t, uint64(len(data)), put.Manifest.TotalSize())
	assert.GreaterOrEqual(t, len(put.Manifest), 3)

	got, err := svc.Get(ctx, &chunk.GetRequest{Space: space, Manifest: put.Manifest})
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestPutDeduplicates(t *testing.T) {
	t.Parallel()

	svc, mdb, backend := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 1024*1024)

	first, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)
	assert.Zero(t, first.DedupedChunks)
	written := backend.Len()

	second, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)

	// Identical content shares every chunk: same manifest, no new payloads,
	// doubled ref counts.
	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, len(second.Manifest), second.DedupedChunks)
	assert.Equal(t, written, backend.Len())

	for _, ref := range first.Manifest {
		count, err := mdb.GetChunkRefCount(ctx, space, ref.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	}
}

func TestPutSharedMiddleAcrossEdits(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()

	base := randomData(t, 4*1024*1024)
	edited := append([]byte("prefix change "), base...)

	first, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: base})
	require.NoError(t, err)
	second, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: edited})
	require.NoError(t, err)

	// Content-defined boundaries resynchronize after the edit, so the two
	// manifests share chunks.
	assert.Positive(t, second.DedupedChunks)
	_ = first
}

func TestPutIdempotencyReplay(t *testing.T) {
	t.Parallel()

	svc, mdb, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 512*1024)

	first, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data, IdempotencyKey: "retry-1"})
	require.NoError(t, err)

	second, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data, IdempotencyKey: "retry-1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The replay must not double-count references
	for _, ref := range first.Manifest {
		count, err := mdb.GetChunkRefCount(ctx, space, ref.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}
}

func TestSpacesDoNotShareChunks(t *testing.T) {
	t.Parallel()

	svc, mdb, _ := newTestService(t)
	ctx := context.Background()
	spaceA := uuid.New()
	spaceB := uuid.New()
	data := randomData(t, 256*1024)

	putA, err := svc.Put(ctx, &chunk.PutRequest{Space: spaceA, Data: data})
	require.NoError(t, err)
	putB, err := svc.Put(ctx, &chunk.PutRequest{Space: spaceB, Data: data})
	require.NoError(t, err)

	// Same digests, separate registries
	assert.Equal(t, putA.Manifest, putB.Manifest)
	for _, ref := range putA.Manifest {
		countA, err := mdb.GetChunkRefCount(ctx, spaceA, ref.ChunkID)
		require.NoError(t, err)
		countB, err := mdb.GetChunkRefCount(ctx, spaceB, ref.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), countA)
		assert.Equal(t, int64(1), countB)
	}
}

// staleHasBackend reports payloads as present a given number of extra
// times, reproducing a dedup check whose payload the sweep removes before
// the references register.
type staleHasBackend struct {
	storage.Backend
	stale int
}

func (b *staleHasBackend) Has(ctx context.Context, space uuid.UUID, id types.ChunkID) (bool, error) {
	if b.stale > 0 {
		b.stale--
		return true, nil
	}
	return b.Backend.Has(ctx, space, id)
}

func TestPutRestoresPayloadSweptAfterDedupCheck(t *testing.T) {
	t.Parallel()

	mdb := memory.New()
	backend := &staleHasBackend{Backend: storage.NewMemory()}
	svc, err := chunk.NewService(chunk.Config{DB: mdb, Backend: backend, Keys: testKey()})
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 16*1024)

	// The dedup check still sees the payload; by registration time it is
	// gone. The registration transaction must write it back.
	backend.stale = 1
	put, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)
	require.Equal(t, 1, put.DedupedChunks)

	got, err := svc.Get(ctx, &chunk.GetRequest{Space: space, Manifest: put.Manifest})
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
}

func TestGetDetectsCorruption(t *testing.T) {
	t.Parallel()

	svc, _, backend := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 128*1024)

	put, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)

	// Overwrite the stored payload with garbage
	ref := put.Manifest[0]
	require.NoError(t, backend.Write(ctx, space, ref.ChunkID, []byte("not the sealed payload")))

	_, err = svc.Get(ctx, &chunk.GetRequest{Space: space, Manifest: put.Manifest})
	assert.True(t, service.IsCorrupt(err), "expected corrupt error, got %v", err)
}

func TestGetMissingChunk(t *testing.T) {
	t.Parallel()

	svc, _, backend := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 128*1024)

	put, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)
	require.NoError(t, backend.Delete(ctx, space, put.Manifest[0].ChunkID))

	_, err = svc.Get(ctx, &chunk.GetRequest{Space: space, Manifest: put.Manifest})
	assert.True(t, service.IsNotFound(err), "expected not found error, got %v", err)
}

func TestDerefMarksZeroSince(t *testing.T) {
	t.Parallel()

	svc, mdb, _ := newTestService(t)
	ctx := context.Background()
	space := uuid.New()
	data := randomData(t, 128*1024)

	put, err := svc.Put(ctx, &chunk.PutRequest{Space: space, Data: data})
	require.NoError(t, err)
	require.NoError(t, svc.Deref(ctx, space, put.Manifest))

	for _, ref := range put.Manifest {
		c, err := mdb.GetChunk(ctx, space, ref.ChunkID)
		require.NoError(t, err)
		assert.Zero(t, c.RefCount)
		assert.Positive(t, c.ZeroSince)
	}

	// Zero-ref chunks are sweep candidates only after the grace window
	candidates, err := mdb.GetZeroRefChunks(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, candidates, len(put.Manifest))
}

func TestQuotaEnforced(t *testing.T) {
	t.Parallel()

	mdb := memory.New()
	svc, err := chunk.NewService(chunk.Config{
		DB:       mdb,
		Backend:  storage.NewMemory(),
		Keys:     testKey(),
		Reserver: quota.NewStaticReserver(64 * 1024),
	})
	require.NoError(t, err)

	ctx := context.Background()
	space := uuid.New()

	_, err = svc.Put(ctx, &chunk.PutRequest{Space: space, Data: randomData(t, 128*1024)})
	assert.True(t, service.IsQuotaExceeded(err), "expected quota error, got %v", err)

	// A rejected write must not leak reservation bytes
	_, err = svc.Put(ctx, &chunk.PutRequest{Space: space, Data: randomData(t, 32*1024)})
	assert.NoError(t, err)
}
