package featureserv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/testutil"
)

// recorder captures the last request a test server saw.
type recorder struct {
	path  atomic.Value
	query atomic.Value
}

func (r *recorder) lastPath() string      { v, _ := r.path.Load().(string); return v }
func (r *recorder) lastQuery() url.Values { v, _ := r.query.Load().(url.Values); return v }

func newServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path.Store(r.URL.Path)
		rec.query.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestRepairStringEncodedResult(t *testing.T) {
	repaired := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	body, err := json.Marshal([]map[string]string{{"geojson": repaired}})
	require.NoError(t, err)
	srv, rec := newServer(t, http.StatusOK, string(body))

	g, err := New(srv.URL).Repair(context.Background(), testutil.Square(0, 0, 1, 1), canon.FamilyPolygon)
	require.NoError(t, err)
	assert.Equal(t, testutil.Square(0, 0, 1, 1), g)

	assert.Equal(t, "/functions/postgisftw.repair_geojson_geometry/items.json", rec.lastPath())
	assert.Equal(t, "3", rec.lastQuery().Get("geometry_type"))

	sent, err := geojson.UnmarshalGeometry([]byte(rec.lastQuery().Get("geojson_str")))
	require.NoError(t, err)
	assert.Equal(t, testutil.Square(0, 0, 1, 1), sent.Geometry())
}

func TestRepairObjectResult(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[{"geojson":{"type":"Point","coordinates":[1,2]}}]`)

	g, err := New(srv.URL).Repair(context.Background(), orb.Point{1, 2}, canon.FamilyPoint)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, g)
}

func TestRepairResultCount(t *testing.T) {
	for _, body := range []string{`[]`, `[{"geojson":"{}"},{"geojson":"{}"}]`} {
		srv, _ := newServer(t, http.StatusOK, body)

		_, err := New(srv.URL).Repair(context.Background(), orb.Point{0, 0}, canon.FamilyPoint)
		require.Error(t, err)
		assert.Equal(t, geoerr.CodeGeometryNotFound, geoerr.CodeOf(err), "body %s", body)
	}
}

func TestRepairMalformedResult(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[{"geojson":"not json"}]`)

	_, err := New(srv.URL).Repair(context.Background(), orb.Point{0, 0}, canon.FamilyPoint)
	require.Error(t, err)
	assert.True(t, geoerr.IsUpstream(err))
}

func TestRemoteStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    geoerr.Code
		message string
	}{
		{"not found with body", http.StatusNotFound, "no such feature", geoerr.CodeGeometryNotFound, "no such feature"},
		{"not found without body", http.StatusNotFound, "", geoerr.CodeGeometryNotFound, "Feature Not Found"},
		{"server error", http.StatusInternalServerError, "db down", geoerr.CodeRemoteServiceFailure, "db down"},
		{"bad request", http.StatusBadRequest, "", geoerr.CodeRemoteServiceFailure, "400 Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)

			_, err := New(srv.URL).Repair(context.Background(), orb.Point{0, 0}, canon.FamilyPoint)
			require.Error(t, err)

			var ge *geoerr.Error
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.code, ge.Code)
			assert.Equal(t, tt.message, ge.Message)
			if tt.code == geoerr.CodeRemoteServiceFailure {
				assert.Equal(t, tt.status, ge.Status)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[]`)
	srv.Close()

	_, err := New(srv.URL).Repair(context.Background(), orb.Point{0, 0}, canon.FamilyPoint)
	require.Error(t, err)
	var ge *geoerr.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, geoerr.CodeRemoteServiceFailure, ge.Code)
	assert.NotNil(t, ge.Err)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, WithTimeout(20*time.Millisecond)).Boundary(context.Background(), 0, "ESP", 0.005)
	require.Error(t, err)
	assert.True(t, geoerr.IsUpstream(err))
}

func TestBoundary(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name_0":"Spain"},` +
		`"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`
	srv, rec := newServer(t, http.StatusOK, body)

	c := New(srv.URL+"/", WithBoundariesTable("public.gadm"))
	f, err := c.Boundary(context.Background(), 1, "ESP.3_1", 0.0005)
	require.NoError(t, err)
	assert.Equal(t, "Spain", f.Properties["name_0"])

	assert.Equal(t, "/collections/public.gadm/items.json", rec.lastPath())
	q := rec.lastQuery()
	assert.Equal(t, "1", q.Get("level"))
	assert.Equal(t, "ESP.3_1", q.Get("gid_1"))
	assert.Equal(t, "simplify,0.0005", q.Get("transform"))
}

func TestBoundaryEmpty(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"type":"FeatureCollection","features":[]}`)

	_, err := New(srv.URL).Boundary(context.Background(), 0, "XXX", 0.005)
	require.Error(t, err)
	assert.Equal(t, geoerr.CodeGeometryNotFound, geoerr.CodeOf(err))
}

func TestFeature(t *testing.T) {
	body := `{"type":"Feature","id":42,"properties":{"name":"mine"},"geometry":{"type":"Point","coordinates":[3,4]}}`
	srv, rec := newServer(t, http.StatusOK, body)
	c := New(srv.URL)

	thresh := 0.01
	f, err := c.Feature(context.Background(), "gfw_mining", 42, &thresh)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{3, 4}, f.Geometry)
	assert.Equal(t, "/collections/gfw_mining/items/42.json", rec.lastPath())
	assert.Equal(t, "simplify,0.01", rec.lastQuery().Get("transform"))

	_, err = c.Feature(context.Background(), "gfw_mining", 42, nil)
	require.NoError(t, err)
	assert.Empty(t, rec.lastQuery().Get("transform"))
}

func TestFeatureWithoutGeometry(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"type":"Feature","properties":{},"geometry":null}`)

	_, err := New(srv.URL).Feature(context.Background(), "t", 1, nil)
	require.Error(t, err)
	assert.Equal(t, geoerr.CodeGeometryNotFound, geoerr.CodeOf(err))
}
