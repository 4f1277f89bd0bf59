// Package geostore orchestrates the save and lookup pipelines.
//
// Save: parse → canonicalize → (FeatureCollection inputs, when a repairer is
// configured) repair and re-canonicalize → hash → area and bbox → upsert.
//
// Lookup: id → redirect → find by hash → bbox, computed and persisted on
// first read when the record has none.
package geostore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/antimeridian"
	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/metrics"
	"github.com/roach88/geostore/internal/model"
	"github.com/roach88/geostore/internal/redirect"
)

// DefaultMaxFoundByID caps the records a batch lookup returns.
const DefaultMaxFoundByID = 1000

// Metadata is the opaque data attached to a saved geometry.
type Metadata struct {
	Provider *model.Provider
	Info     *model.Info
	Lock     bool
}

// BatchResult is the outcome of FindByIDs.
type BatchResult struct {
	// Records holds at most the configured cap of found records.
	Records []*model.Record `json:"geostores"`

	// FoundIDs lists the hash of every found record, capped or not.
	FoundIDs []string `json:"geostoresFound"`

	Found    int `json:"found"`
	Returned int `json:"returned"`
}

// AreaResult is the outcome of Area.
type AreaResult struct {
	BBox   geo.BBox `json:"bbox"`
	AreaHa float64  `json:"areaHa"`
}

// Service runs the geostore pipelines.
//
// Thread-safety: Service holds no mutable state after construction and is
// safe for concurrent use when its collaborators are.
type Service struct {
	repo      Repository
	redirects *redirect.Table
	repairer  Repairer
	bbox      *antimeridian.Engine
	maxFound  int
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRepairer enables geometry repair for FeatureCollection inputs.
func WithRepairer(r Repairer) ServiceOption {
	return func(s *Service) {
		s.repairer = r
	}
}

// WithBBoxEngine replaces the default antimeridian engine.
func WithBBoxEngine(e *antimeridian.Engine) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.bbox = e
		}
	}
}

// WithRedirects replaces the redirect table built over the repository.
func WithRedirects(t *redirect.Table) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.redirects = t
		}
	}
}

// WithMaxFoundByID sets the batch lookup cap.
//
// Default: 1000 (DefaultMaxFoundByID)
func WithMaxFoundByID(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxFound = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service over repo.
func New(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		maxFound: DefaultMaxFoundByID,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.redirects == nil {
		s.redirects = redirect.New(repo, redirect.WithLogger(s.logger))
	}
	if s.bbox == nil {
		s.bbox = antimeridian.New(nil, s.logger)
	}
	return s
}

// Save stores a GeoJSON payload and returns the persisted record.
//
// An empty payload fails with MissingInput, or with GeometryNotFound when
// meta names a provider: provider-only saves would need the geometry to be
// fetched from the provider, which is not supported.
func (s *Service) Save(ctx context.Context, payload []byte, meta Metadata) (*model.Record, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		if meta.Provider != nil {
			return nil, geoerr.GeometryNotFound(
				fmt.Sprintf("no geometry supplied for provider %q", meta.Provider.Type))
		}
		return nil, geoerr.MissingInput("geojson or provider required")
	}

	in, err := canon.Parse(payload)
	if err != nil {
		return nil, err
	}
	return s.SaveInput(ctx, in, meta)
}

// SaveInput stores an already parsed payload.
func (s *Service) SaveInput(ctx context.Context, in *canon.Input, meta Metadata) (*model.Record, error) {
	rec, err := s.saveInput(ctx, in, meta)
	if err != nil {
		metrics.SaveErrorsTotal.WithLabelValues(errorLabel(err)).Inc()
		return nil, err
	}
	metrics.SavesTotal.Inc()
	return rec, nil
}

func (s *Service) saveInput(ctx context.Context, in *canon.Input, meta Metadata) (*model.Record, error) {
	fc := canon.Canonicalize(in, nil)

	if s.repairer != nil && in.Kind == canon.KindFeatureCollection {
		repaired, err := s.repair(ctx, fc, canon.PropertiesOf(in))
		if err != nil {
			return nil, err
		}
		fc = repaired
	}

	rec, err := s.newRecord(fc)
	if err != nil {
		return nil, err
	}
	rec.Provider = meta.Provider
	rec.Info = meta.Info
	rec.Lock = meta.Lock

	saved, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save geostore: %w", err)
	}
	s.logger.Info("geostore_saved", "hash", saved.Hash, "area_ha", rec.AreaHa)
	return saved, nil
}

// repair sends the subject geometry of fc to the repairer and rebuilds the
// collection around the result, keeping props.
func (s *Service) repair(ctx context.Context, fc *geojson.FeatureCollection, props geojson.Properties) (*geojson.FeatureCollection, error) {
	g := canon.ExtractGeometry(fc)
	if g == nil {
		return nil, geoerr.MissingInput("feature collection has no geometry to repair")
	}
	family, err := canon.FamilyOf(g)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("geometry_repair", "type", g.GeoJSONType(), "family", int(family))
	repaired, err := s.repairer.Repair(ctx, g, family)
	if err != nil {
		return nil, fmt.Errorf("repair geometry: %w", err)
	}
	return canon.Canonicalize(canon.FromGeometry(repaired), props), nil
}

// newRecord hashes fc and derives its area and bbox.
func (s *Service) newRecord(fc *geojson.FeatureCollection) (*model.Record, error) {
	hash, err := canon.Hash(fc)
	if err != nil {
		return nil, geoerr.InvalidArgument(err.Error())
	}

	bbox, err := s.bbox.Compute(fc)
	if err != nil {
		return nil, err
	}

	area := geo.Hectares(fc)
	return &model.Record{
		Hash:    hash,
		GeoJSON: fc,
		BBox:    &bbox,
		AreaHa:  &area,
	}, nil
}

// FindByID resolves id through the redirect table and returns the record,
// filling in its bbox on first read.
func (s *Service) FindByID(ctx context.Context, id string) (*model.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, geoerr.MissingInput("geostore id required")
	}

	hash, err := s.redirects.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(lookupLabel(err)).Inc()
		return nil, err
	}
	metrics.LookupsTotal.WithLabelValues("hit").Inc()
	return s.EnsureBBox(ctx, rec)
}

// EnsureBBox computes and persists the bbox of a record that has none.
// A stored bbox is returned untouched.
func (s *Service) EnsureBBox(ctx context.Context, rec *model.Record) (*model.Record, error) {
	if rec.BBox != nil {
		return rec, nil
	}

	bbox, err := s.bbox.Compute(rec.GeoJSON)
	if err != nil {
		return nil, fmt.Errorf("compute bbox for %s: %w", rec.Hash, err)
	}
	if err := s.repo.SetBBox(ctx, rec.Hash, bbox); err != nil {
		return nil, err
	}
	metrics.BBoxBackfillsTotal.Inc()
	s.logger.Debug("bbox_persisted", "hash", rec.Hash, "bbox", bbox)

	rec.BBox = &bbox
	return rec, nil
}

// FindByIDs looks up a batch of ids. Ids are trimmed and deduplicated before
// resolution; records come back in request order, capped at the configured
// maximum.
func (s *Service) FindByIDs(ctx context.Context, ids []string) (*BatchResult, error) {
	if len(redirect.Normalize(ids)) == 0 {
		return nil, geoerr.MissingInput("no geostore ids supplied")
	}

	hashes, err := s.redirects.ResolveAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.FindMany(ctx, hashes)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, geoerr.RecordNotFound(strings.Join(hashes, ", "))
	}

	found := make([]string, len(records))
	for i, r := range records {
		found[i] = r.Hash
	}
	returned := records[:min(len(records), s.maxFound)]

	s.logger.Info("geostores_found", "found", len(records), "returned", len(returned))
	return &BatchResult{
		Records:  returned,
		FoundIDs: found,
		Found:    len(records),
		Returned: len(returned),
	}, nil
}

// Area canonicalizes payload and measures it without storing anything.
func (s *Service) Area(ctx context.Context, payload []byte) (*AreaResult, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, geoerr.MissingInput("geojson required")
	}

	in, err := canon.Parse(payload)
	if err != nil {
		return nil, err
	}
	fc := canon.Canonicalize(in, nil)

	bbox, err := s.bbox.Compute(fc)
	if err != nil {
		return nil, err
	}
	return &AreaResult{BBox: bbox, AreaHa: geo.Hectares(fc)}, nil
}

// NationalList returns the stored country-level boundaries.
func (s *Service) NationalList(ctx context.Context) ([]model.CountryEntry, error) {
	return s.repo.NationalList(ctx)
}

func errorLabel(err error) string {
	if code := geoerr.CodeOf(err); code != "" {
		return string(code)
	}
	return "internal"
}

func lookupLabel(err error) string {
	if geoerr.IsNotFound(err) {
		return "miss"
	}
	return "error"
}
