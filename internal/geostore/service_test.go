package geostore_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/antimeridian"
	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/geostore"
	"github.com/roach88/geostore/internal/model"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/testutil"
)

// fakeRepairer returns a fixed geometry (or error) and records its calls.
type fakeRepairer struct {
	result orb.Geometry
	err    error
	calls  atomic.Int32
	family atomic.Int32
}

func (f *fakeRepairer) Repair(_ context.Context, g orb.Geometry, family canon.Family) (orb.Geometry, error) {
	f.calls.Add(1)
	f.family.Store(int32(family))
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return g, nil
}

// countingPrimitives counts Bound calls to detect bbox recomputation.
type countingPrimitives struct {
	geo.OrbPrimitives
	bounds atomic.Int32
}

func (c *countingPrimitives) Bound(g orb.Geometry) geo.BBox {
	c.bounds.Add(1)
	return c.OrbPrimitives.Bound(g)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "geostore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hashOf(t *testing.T, payload string) string {
	t.Helper()
	in, err := canon.Parse([]byte(payload))
	require.NoError(t, err)
	h, err := canon.Hash(canon.Canonicalize(in, nil))
	require.NoError(t, err)
	return h
}

const collectionJSON = `{"type":"FeatureCollection","features":[` +
	`{"type":"Feature","properties":{"name":"first"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},` +
	`{"type":"Feature","properties":{"name":"second"},"geometry":{"type":"Point","coordinates":[5,5]}}]}`

func TestSaveGeometry(t *testing.T) {
	svc := geostore.New(openStore(t))

	rec, err := svc.Save(context.Background(), []byte(testutil.SquarePolygonJSON), geostore.Metadata{})
	require.NoError(t, err)

	assert.Equal(t, hashOf(t, testutil.SquarePolygonJSON), rec.Hash)
	require.NotNil(t, rec.BBox)
	assert.Equal(t, geo.BBox{10, 10, 20, 20}, *rec.BBox)
	require.NotNil(t, rec.AreaHa)
	assert.Greater(t, *rec.AreaHa, 0.0)
	assert.False(t, rec.Lock)
}

func TestSaveDedupsAndOverwritesMetadata(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	first, err := svc.Save(ctx, []byte(testutil.SquareFeatureJSON), geostore.Metadata{
		Provider: &model.Provider{Type: "carto", Table: "a"},
	})
	require.NoError(t, err)

	// Same content, different key order and whitespace.
	again := `{"geometry":{"coordinates":[[[10,10],[20,10],[20,20],[10,20],[10,10]]],"type":"Polygon"},
		"properties":{"name":"square"},"type":"Feature"}`
	second, err := svc.Save(ctx, []byte(again), geostore.Metadata{
		Provider: &model.Provider{Type: "carto", Table: "b"},
		Info:     &model.Info{ISO: "ESP"},
		Lock:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, "b", second.Provider.Table)
	assert.Equal(t, "ESP", second.Info.ISO)
	assert.True(t, second.Lock)

	all, err := repo.FindMany(ctx, []string{first.Hash})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveCoordinateChangeChangesHash(t *testing.T) {
	svc := geostore.New(openStore(t))
	ctx := context.Background()

	a, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[1,2]}`), geostore.Metadata{})
	require.NoError(t, err)
	b, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[1,2.000001]}`), geostore.Metadata{})
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestSaveRejectsThirdOrdinate(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	// Inputs differing only in Z must never collapse onto one record.
	for _, payload := range []string{
		`{"type":"Point","coordinates":[10,10,5]}`,
		`{"type":"Point","coordinates":[10,10,7]}`,
	} {
		_, err := svc.Save(ctx, []byte(payload), geostore.Metadata{})
		require.Error(t, err, payload)
		assert.Equal(t, geoerr.CodeInvalidArgument, geoerr.CodeOf(err), payload)
	}

	planar, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[10,10]}`), geostore.Metadata{})
	require.NoError(t, err)
	_, err = repo.FindByHash(ctx, planar.Hash)
	require.NoError(t, err)
}

func TestSaveRepairsFeatureCollections(t *testing.T) {
	repaired := testutil.Square(0, 0, 1, 1)
	repairer := &fakeRepairer{result: repaired}
	svc := geostore.New(openStore(t), geostore.WithRepairer(repairer))

	rec, err := svc.Save(context.Background(), []byte(collectionJSON), geostore.Metadata{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), repairer.calls.Load())
	assert.Equal(t, int32(canon.FamilyPolygon), repairer.family.Load())

	require.Len(t, rec.GeoJSON.Features, 1)
	assert.Equal(t, repaired, rec.GeoJSON.Features[0].Geometry)
	assert.Equal(t, "first", rec.GeoJSON.Features[0].Properties["name"])

	want := `{"type":"Feature","properties":{"name":"first"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}`
	assert.Equal(t, hashOf(t, want), rec.Hash)
}

func TestSaveSkipsRepairForOtherInputs(t *testing.T) {
	repairer := &fakeRepairer{}
	svc := geostore.New(openStore(t), geostore.WithRepairer(repairer))
	ctx := context.Background()

	for _, payload := range []string{testutil.SquarePolygonJSON, testutil.SquareFeatureJSON} {
		_, err := svc.Save(ctx, []byte(payload), geostore.Metadata{})
		require.NoError(t, err)
	}
	assert.Zero(t, repairer.calls.Load())
}

func TestSaveWithoutRepairerKeepsEveryFeature(t *testing.T) {
	svc := geostore.New(openStore(t))

	rec, err := svc.Save(context.Background(), []byte(collectionJSON), geostore.Metadata{})
	require.NoError(t, err)
	require.Len(t, rec.GeoJSON.Features, 2)
	assert.Equal(t, "second", rec.GeoJSON.Features[1].Properties["name"])
}

func TestSaveRejectsUnknownTypesBeforeRepair(t *testing.T) {
	repairer := &fakeRepairer{}
	svc := geostore.New(openStore(t), geostore.WithRepairer(repairer))
	ctx := context.Background()

	payloads := []string{
		`{"type":"Circle","coordinates":[0,0],"radius":3}`,
		`{"type":"FeatureCollection","features":[{"type":"Feature","properties":null,"geometry":{"type":"Circle","coordinates":[0,0]}}]}`,
		// Valid tag, but GeometryCollections have no repair family.
		`{"type":"FeatureCollection","features":[{"type":"Feature","properties":null,` +
			`"geometry":{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[0,0]}]}}]}`,
	}

	for _, p := range payloads {
		_, err := svc.Save(ctx, []byte(p), geostore.Metadata{})
		require.Error(t, err)
		assert.Equal(t, geoerr.CodeUnsupportedGeometryType, geoerr.CodeOf(err), "payload %s", p)
	}
	assert.Zero(t, repairer.calls.Load())
}

func TestSaveEmptyCollectionIsMissingInput(t *testing.T) {
	repairer := &fakeRepairer{}
	ctx := context.Background()
	empty := []byte(`{"type":"FeatureCollection","features":[]}`)

	for name, svc := range map[string]*geostore.Service{
		"with repairer":    geostore.New(openStore(t), geostore.WithRepairer(repairer)),
		"without repairer": geostore.New(openStore(t)),
	} {
		_, err := svc.Save(ctx, empty, geostore.Metadata{})
		require.Error(t, err, name)
		assert.Equal(t, geoerr.CodeMissingInput, geoerr.CodeOf(err), name)
	}
	assert.Zero(t, repairer.calls.Load())
}

func TestSaveRepairFailureStoresNothing(t *testing.T) {
	repo := openStore(t)
	repairer := &fakeRepairer{err: geoerr.GeometryNotFound("repair returned 0 geometries, want 1")}
	svc := geostore.New(repo, geostore.WithRepairer(repairer))

	_, err := svc.Save(context.Background(), []byte(collectionJSON), geostore.Metadata{})
	require.Error(t, err)
	assert.Equal(t, geoerr.CodeGeometryNotFound, geoerr.CodeOf(err))

	_, err = repo.FindByHash(context.Background(), hashOf(t, collectionJSON))
	assert.True(t, geoerr.IsNotFound(err))
}

func TestSaveMissingInput(t *testing.T) {
	svc := geostore.New(openStore(t))
	ctx := context.Background()

	_, err := svc.Save(ctx, nil, geostore.Metadata{})
	assert.Equal(t, geoerr.CodeMissingInput, geoerr.CodeOf(err))

	_, err = svc.Save(ctx, []byte("  "), geostore.Metadata{Provider: &model.Provider{Type: "carto"}})
	assert.Equal(t, geoerr.CodeGeometryNotFound, geoerr.CodeOf(err))
}

func TestFindByIDFollowsRedirects(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	saved, err := svc.Save(ctx, []byte(testutil.SquarePolygonJSON), geostore.Metadata{})
	require.NoError(t, err)
	require.NoError(t, repo.PutRedirect(ctx, "5812c6b4c4d5b3000a7b2c1d", saved.Hash))

	got, err := svc.FindByID(ctx, "5812c6b4c4d5b3000a7b2c1d")
	require.NoError(t, err)
	assert.Equal(t, saved.Hash, got.Hash)

	got, err = svc.FindByID(ctx, " "+saved.Hash+" ")
	require.NoError(t, err)
	assert.Equal(t, saved.Hash, got.Hash)
}

func TestFindByIDDanglingRedirect(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	require.NoError(t, repo.PutRedirect(ctx, "old", "ffffffffffffffffffffffffffffffff"))

	_, err := svc.FindByID(ctx, "old")
	require.Error(t, err)
	assert.Equal(t, geoerr.CodeRecordNotFound, geoerr.CodeOf(err))
	assert.Contains(t, err.Error(), "ffffffffffffffffffffffffffffffff")
}

func TestFindByIDComputesBBoxOnce(t *testing.T) {
	repo := openStore(t)
	prims := &countingPrimitives{}
	svc := geostore.New(repo, geostore.WithBBoxEngine(antimeridian.New(prims, nil)))
	ctx := context.Background()

	// A legacy record saved without a bbox.
	fc := canon.Canonicalize(canon.FromGeometry(testutil.Fiji()), nil)
	hash, err := canon.Hash(fc)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, &model.Record{Hash: hash, GeoJSON: fc})
	require.NoError(t, err)

	got, err := svc.FindByID(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got.BBox)
	assert.Equal(t, geo.BBox{170, -20, 190, -10}, *got.BBox)
	assert.Positive(t, prims.bounds.Load())

	stored, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, stored.BBox)
	assert.Equal(t, geo.BBox{170, -20, 190, -10}, *stored.BBox)

	prims.bounds.Store(0)
	_, err = svc.FindByID(ctx, hash)
	require.NoError(t, err)
	assert.Zero(t, prims.bounds.Load(), "stored bbox must not be recomputed")
}

func TestFindByIDs(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	a, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[1,1]}`), geostore.Metadata{})
	require.NoError(t, err)
	b, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[2,2]}`), geostore.Metadata{})
	require.NoError(t, err)

	res, err := svc.FindByIDs(ctx, []string{a.Hash, a.Hash, " " + b.Hash, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Returned)
	assert.Equal(t, []string{a.Hash, b.Hash}, res.FoundIDs)
}

func TestFindByIDsCapsReturnedRecords(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo, geostore.WithMaxFoundByID(1))
	ctx := context.Background()

	a, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[1,1]}`), geostore.Metadata{})
	require.NoError(t, err)
	b, err := svc.Save(ctx, []byte(`{"type":"Point","coordinates":[2,2]}`), geostore.Metadata{})
	require.NoError(t, err)
	require.NoError(t, repo.PutRedirect(ctx, "legacy-b", b.Hash))

	res, err := svc.FindByIDs(ctx, []string{a.Hash, "legacy-b", b.Hash})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 1, res.Returned)
	require.Len(t, res.Records, 1)
	assert.Equal(t, a.Hash, res.Records[0].Hash)
	assert.Equal(t, []string{a.Hash, b.Hash}, res.FoundIDs)
}

func TestFindByIDsErrors(t *testing.T) {
	svc := geostore.New(openStore(t))
	ctx := context.Background()

	_, err := svc.FindByIDs(ctx, []string{" ", ""})
	assert.Equal(t, geoerr.CodeMissingInput, geoerr.CodeOf(err))

	_, err = svc.FindByIDs(ctx, []string{"nope"})
	assert.Equal(t, geoerr.CodeRecordNotFound, geoerr.CodeOf(err))
}

func TestArea(t *testing.T) {
	repo := openStore(t)
	svc := geostore.New(repo)
	ctx := context.Background()

	res, err := svc.Area(ctx, []byte(testutil.FijiFeatureCollectionJSON))
	require.NoError(t, err)
	assert.Equal(t, geo.BBox{170, -20, 190, -10}, res.BBox)
	assert.Greater(t, res.AreaHa, 0.0)

	_, err = repo.FindByHash(ctx, hashOf(t, testutil.FijiFeatureCollectionJSON))
	assert.True(t, geoerr.IsNotFound(err), "area must not persist")

	_, err = svc.Area(ctx, nil)
	assert.Equal(t, geoerr.CodeMissingInput, geoerr.CodeOf(err))
}

func TestNationalList(t *testing.T) {
	svc := geostore.New(openStore(t))
	ctx := context.Background()

	_, err := svc.Save(ctx, []byte(testutil.SquarePolygonJSON), geostore.Metadata{
		Info: &model.Info{ISO: "ESP", Name: "Spain"},
	})
	require.NoError(t, err)

	list, err := svc.NationalList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ESP", list[0].ISO)
}
