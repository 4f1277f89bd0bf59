// Package boundary serves administrative (GADM 3.6) and land-use boundaries.
//
// Every lookup checks the repository first, keyed by the record's info
// fields. On a miss the boundary is fetched from the feature server, saved
// through the geostore pipeline with its info attached, and returned. Later
// lookups with the same key hit the stored record.
package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geostore"
	"github.com/roach88/geostore/internal/model"
)

// GadmVersion is recorded on every administrative boundary.
const GadmVersion = "3.6"

// Fetcher retrieves boundaries from the feature server. Implemented by
// featureserv.Client.
type Fetcher interface {
	Boundary(ctx context.Context, level int, gid string, thresh float64) (*geojson.Feature, error)
	Feature(ctx context.Context, table string, id int, thresh *float64) (*geojson.Feature, error)
}

// Finder looks up stored boundaries by info key.
type Finder interface {
	FindAdmin(ctx context.Context, iso string, id1, id2 *int, thresh *float64) (*model.Record, bool, error)
	FindUse(ctx context.Context, use string, id int, simplify bool, thresh *float64) (*model.Record, bool, error)
}

// Saver persists fetched boundaries. Implemented by geostore.Service.
type Saver interface {
	SaveInput(ctx context.Context, in *canon.Input, meta geostore.Metadata) (*model.Record, error)
	EnsureBBox(ctx context.Context, rec *model.Record) (*model.Record, error)
}

// Catalog resolves boundary requests to stored records.
type Catalog struct {
	finder  Finder
	saver   Saver
	fetcher Fetcher
	logger  *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Catalog.
func New(finder Finder, saver Saver, fetcher Fetcher, opts ...Option) *Catalog {
	c := &Catalog{
		finder:  finder,
		saver:   saver,
		fetcher: fetcher,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// adminKey identifies one administrative boundary.
type adminKey struct {
	level  int
	iso    string
	id1    *int
	id2    *int
	thresh float64
}

func (k adminKey) gid() string {
	switch k.level {
	case 1:
		return fmt.Sprintf("%s.%d_1", k.iso, *k.id1)
	case 2:
		return fmt.Sprintf("%s.%d.%d_1", k.iso, *k.id1, *k.id2)
	}
	return k.iso
}

// National returns the country boundary for iso. A nil thresh selects the
// default simplification.
func (c *Catalog) National(ctx context.Context, iso string, thresh *float64) (*model.Record, error) {
	return c.admin(ctx, newAdminKey(0, iso, nil, nil, thresh))
}

// Subnational returns the first-level boundary id1 of iso.
func (c *Catalog) Subnational(ctx context.Context, iso string, id1 int, thresh *float64) (*model.Record, error) {
	return c.admin(ctx, newAdminKey(1, iso, &id1, nil, thresh))
}

// Admin2 returns the second-level boundary id2 inside id1 of iso.
func (c *Catalog) Admin2(ctx context.Context, iso string, id1, id2 int, thresh *float64) (*model.Record, error) {
	return c.admin(ctx, newAdminKey(2, iso, &id1, &id2, thresh))
}

func newAdminKey(level int, iso string, id1, id2 *int, thresh *float64) adminKey {
	k := adminKey{level: level, iso: strings.ToUpper(strings.TrimSpace(iso)), id1: id1, id2: id2}
	if thresh != nil {
		k.thresh = *thresh
	} else {
		k.thresh = DefaultThreshold(k.iso, level)
	}
	return k
}

func (c *Catalog) admin(ctx context.Context, k adminKey) (*model.Record, error) {
	if err := checkISO(k.iso); err != nil {
		return nil, err
	}

	rec, ok, err := c.finder.FindAdmin(ctx, k.iso, k.id1, k.id2, &k.thresh)
	if err != nil {
		return nil, fmt.Errorf("find boundary %s: %w", k.gid(), err)
	}
	if ok {
		c.logger.Debug("boundary_cache_hit", "gid", k.gid(), "hash", rec.Hash)
		return c.saver.EnsureBBox(ctx, rec)
	}

	c.logger.Info("boundary_fetch", "gid", k.gid(), "level", k.level, "thresh", k.thresh)
	f, err := c.fetcher.Boundary(ctx, k.level, k.gid(), k.thresh)
	if err != nil {
		return nil, err
	}

	thresh := k.thresh
	info := &model.Info{
		ISO:            k.iso,
		Name:           f.Properties.MustString(fmt.Sprintf("name_%d", k.level), ""),
		ID1:            k.id1,
		ID2:            k.id2,
		Gadm:           GadmVersion,
		SimplifyThresh: &thresh,
	}

	// Feature-server attributes are not part of the stored boundary.
	in := &canon.Input{
		Kind:    canon.KindFeature,
		Feature: &geojson.Feature{Type: "Feature", Geometry: f.Geometry},
	}
	return c.saver.SaveInput(ctx, in, geostore.Metadata{Info: info})
}

// Use returns feature id of the land-use table. A nil thresh fetches the
// feature unsimplified.
func (c *Catalog) Use(ctx context.Context, table string, id int, thresh *float64) (*model.Record, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, invalid("use table name required")
	}

	simplify := thresh != nil
	rec, ok, err := c.finder.FindUse(ctx, table, id, simplify, thresh)
	if err != nil {
		return nil, fmt.Errorf("find use %s/%d: %w", table, id, err)
	}
	if ok {
		c.logger.Debug("use_cache_hit", "table", table, "id", id, "hash", rec.Hash)
		return c.saver.EnsureBBox(ctx, rec)
	}

	c.logger.Info("use_fetch", "table", table, "id", id)
	f, err := c.fetcher.Feature(ctx, table, id, thresh)
	if err != nil {
		return nil, err
	}

	info := &model.Info{
		Use:            &model.UseInfo{Use: table, ID: id},
		Simplify:       simplify,
		SimplifyThresh: thresh,
	}
	return c.saver.SaveInput(ctx, &canon.Input{Kind: canon.KindFeature, Feature: f}, geostore.Metadata{Info: info})
}
