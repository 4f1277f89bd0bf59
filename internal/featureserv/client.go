// Package featureserv talks to a pg_featureserv instance: the geometry
// repair function and the boundary collections.
//
// Remote 404s become GeometryNotFound; any other non-2xx answer, transport
// failure or undecodable body becomes RemoteServiceFailure carrying the
// remote status. Nothing is retried.
package featureserv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/metrics"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// repairPath is the pg_featureserv function that fixes invalid geometries.
const repairPath = "/functions/postgisftw.repair_geojson_geometry/items.json"

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 4096

// Client is a pg_featureserv client.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	baseURL         string
	boundariesTable string
	http            *http.Client
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithBoundariesTable sets the collection that holds administrative
// boundaries.
func WithBoundariesTable(table string) Option {
	return func(c *Client) {
		c.boundariesTable = table
	}
}

// WithLogger sets the logger for request events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the pg_featureserv at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		boundariesTable: "public.gadm36_boundaries",
		http:            &http.Client{Timeout: DefaultTimeout},
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// repairResult is one row of the repair function's answer. geojson may be
// a JSON string holding the geometry or the geometry object itself.
type repairResult struct {
	GeoJSON json.RawMessage `json:"geojson"`
}

// Repair sends g to the repair function and returns the repaired geometry.
// The caller derives family with canon.FamilyOf, so unknown types never
// reach the network.
func (c *Client) Repair(ctx context.Context, g orb.Geometry, family canon.Family) (orb.Geometry, error) {
	geomJSON, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("repair: encode geometry: %w", err)
	}

	params := url.Values{}
	params.Set("geojson_str", string(geomJSON))
	params.Set("geometry_type", strconv.Itoa(int(family)))

	var results []repairResult
	if err := c.getJSON(ctx, c.baseURL+repairPath, params, &results); err != nil {
		return nil, err
	}

	if len(results) != 1 {
		c.logger.Warn("repair_unexpected_result_count", "count", len(results))
		return nil, geoerr.GeometryNotFound(fmt.Sprintf("repair returned %d geometries, want 1", len(results)))
	}

	repaired, err := decodeGeometry(results[0].GeoJSON)
	if err != nil {
		return nil, geoerr.RemoteServiceFailure(http.StatusOK, "malformed repair result", err)
	}
	return repaired, nil
}

// Boundary fetches the first administrative boundary matching gid at the
// given level, simplified with thresh.
func (c *Client) Boundary(ctx context.Context, level int, gid string, thresh float64) (*geojson.Feature, error) {
	params := url.Values{}
	params.Set("level", strconv.Itoa(level))
	params.Set(fmt.Sprintf("gid_%d", level), gid)
	params.Set("transform", simplifyTransform(thresh))

	endpoint := fmt.Sprintf("%s/collections/%s/items.json", c.baseURL, c.boundariesTable)

	var fc geojson.FeatureCollection
	if err := c.getJSON(ctx, endpoint, params, &fc); err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, geoerr.GeometryNotFound(fmt.Sprintf("no boundary for %s at level %d", gid, level))
	}
	return fc.Features[0], nil
}

// Feature fetches one feature of table by id. A nil thresh skips
// simplification.
func (c *Client) Feature(ctx context.Context, table string, id int, thresh *float64) (*geojson.Feature, error) {
	params := url.Values{}
	if thresh != nil {
		params.Set("transform", simplifyTransform(*thresh))
	}

	endpoint := fmt.Sprintf("%s/collections/%s/items/%d.json", c.baseURL, table, id)

	var f geojson.Feature
	if err := c.getJSON(ctx, endpoint, params, &f); err != nil {
		return nil, err
	}
	if f.Geometry == nil {
		return nil, geoerr.GeometryNotFound(fmt.Sprintf("feature %s/%d has no geometry", table, id))
	}
	return &f, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	t0 := time.Now()
	c.logger.Debug("featureserv_req", "url", endpoint)
	resp, err := c.http.Do(req)
	metrics.FeatureServDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.FeatureServRequestsTotal.WithLabelValues("transport_error").Inc()
		c.logger.Error("featureserv_http_error", "url", endpoint, "err", err)
		return geoerr.RemoteServiceFailure(0, "request to feature server failed", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("featureserv_resp", "url", endpoint, "status", resp.StatusCode,
		"duration_ms", time.Since(t0).Milliseconds())

	metrics.FeatureServRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode == http.StatusNotFound {
		return geoerr.GeometryNotFound(readMessage(resp.Body, "Feature Not Found"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return geoerr.RemoteServiceFailure(resp.StatusCode, readMessage(resp.Body, resp.Status), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("featureserv_decode_error", "url", endpoint, "err", err)
		return geoerr.RemoteServiceFailure(resp.StatusCode, "malformed response from feature server", err)
	}
	return nil
}

// decodeGeometry accepts a geometry object or a JSON string holding one.
func decodeGeometry(raw json.RawMessage) (orb.Geometry, error) {
	data := []byte(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		data = []byte(s)
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

func readMessage(body io.Reader, fallback string) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return fallback
}

func simplifyTransform(thresh float64) string {
	return "simplify," + strconv.FormatFloat(thresh, 'f', -1, 64)
}
