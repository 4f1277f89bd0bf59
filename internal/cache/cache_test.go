package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/model"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "geostore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// redisClient connects to GEOSTORE_TEST_REDIS_ADDR or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("GEOSTORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GEOSTORE_TEST_REDIS_ADDR not set")
	}
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rc.Ping(ctx).Err())
	return rc
}

func legacyRecord(t *testing.T) *model.Record {
	t.Helper()
	fc := canon.Canonicalize(canon.FromGeometry(testutil.Square(10, 10, 20, 20)), nil)
	hash, err := canon.Hash(fc)
	require.NoError(t, err)
	return &model.Record{Hash: hash, GeoJSON: fc}
}

func TestNilClientPassesThrough(t *testing.T) {
	s := openStore(t)
	r := New(s, nil)
	ctx := context.Background()

	rec := legacyRecord(t)
	_, err := r.Upsert(ctx, rec)
	require.NoError(t, err)

	got, err := r.FindByHash(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, rec.Hash, got.Hash)

	require.NoError(t, r.PutRedirect(ctx, "old", rec.Hash))
	hash, ok, err := r.LookupRedirect(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec.Hash, hash)

	require.NoError(t, r.SetBBox(ctx, rec.Hash, geo.BBox{10, 10, 20, 20}))
}

func TestFindByHashReadsThrough(t *testing.T) {
	rc := redisClient(t)
	s := openStore(t)
	r := New(s, rc, WithPrefix("geostore-test-"+uuid.NewString()))
	ctx := context.Background()

	rec := legacyRecord(t)
	_, err := s.Upsert(ctx, rec)
	require.NoError(t, err)

	first, err := r.FindByHash(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Nil(t, first.BBox)

	cached, err := rc.Get(ctx, r.recordKey(rec.Hash)).Result()
	require.NoError(t, err)
	assert.Contains(t, cached, rec.Hash)

	second, err := r.FindByHash(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.GeoJSON.Features[0].Geometry, second.GeoJSON.Features[0].Geometry)
}

func TestSetBBoxInvalidatesRecord(t *testing.T) {
	rc := redisClient(t)
	s := openStore(t)
	r := New(s, rc, WithPrefix("geostore-test-"+uuid.NewString()))
	ctx := context.Background()

	rec := legacyRecord(t)
	_, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	_, err = r.FindByHash(ctx, rec.Hash)
	require.NoError(t, err)

	require.NoError(t, r.SetBBox(ctx, rec.Hash, geo.BBox{10, 10, 20, 20}))

	got, err := r.FindByHash(ctx, rec.Hash)
	require.NoError(t, err)
	require.NotNil(t, got.BBox)
	assert.Equal(t, geo.BBox{10, 10, 20, 20}, *got.BBox)
}

func TestRedirectsAreCachedAndInvalidated(t *testing.T) {
	rc := redisClient(t)
	s := openStore(t)
	r := New(s, rc, WithPrefix("geostore-test-"+uuid.NewString()), WithTTL(time.Minute))
	ctx := context.Background()

	_, ok, err := r.LookupRedirect(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rc.Exists(ctx, r.redirectKey("old")).Val(), "absent ids are not cached")

	require.NoError(t, r.PutRedirect(ctx, "old", "aaaa"))
	hash, ok, err := r.LookupRedirect(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "aaaa", hash)

	require.NoError(t, r.PutRedirect(ctx, "old", "bbbb"))
	hash, _, err = r.LookupRedirect(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", hash)
}

func TestNotFoundIsNotCached(t *testing.T) {
	rc := redisClient(t)
	r := New(openStore(t), rc, WithPrefix("geostore-test-"+uuid.NewString()))
	ctx := context.Background()

	_, err := r.FindByHash(ctx, "ffffffffffffffffffffffffffffffff")
	assert.True(t, geoerr.IsNotFound(err))
	assert.Zero(t, rc.Exists(ctx, r.recordKey("ffffffffffffffffffffffffffffffff")).Val())
}
