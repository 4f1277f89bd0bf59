// Package antimeridian computes bounding boxes that stay correct for
// geometries crossing the ±180° meridian.
//
// A collection spanning the antimeridian has a raw extent close to
// [-180, y0, 180, y1], which is useless for display. The engine folds over the
// features of a collection and, for every feature touching both hemispheres,
// picks whichever of the prime-meridian-centered or antimeridian-centered box
// is narrower. Results that come out inverted (minX > maxX) are re-expressed
// in 0–360 longitude space.
package antimeridian

import (
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geoerr"
)

// Engine computes crossing-safe bounding boxes.
//
// Thread-safety: Engine holds no mutable state and is safe for concurrent use
// as long as its Primitives are.
type Engine struct {
	prims  geo.Primitives
	logger *slog.Logger
}

// New creates an engine over the given primitives. A nil logger discards.
func New(prims geo.Primitives, logger *slog.Logger) *Engine {
	if prims == nil {
		prims = geo.OrbPrimitives{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{prims: prims, logger: logger}
}

// OverflowsAntimeridian reports whether b is already expressed in 0–360
// longitude space.
func OverflowsAntimeridian(b geo.BBox) bool {
	return b.MaxX() > 180 || b.MinX() > 180
}

// Translate re-expresses an inverted box in 0–360 longitude space.
func Translate(b geo.BBox) geo.BBox {
	return geo.BBox{b.MinX(), b.MinY(), 360 - math.Abs(b.MaxX()), b.MaxY()}
}

// FoldFeature folds one feature into the accumulated box.
func (e *Engine) FoldFeature(f *geojson.Feature, acc geo.BBox) geo.BBox {
	if f == nil || f.Geometry == nil {
		return acc
	}

	// Splitting a degenerate point box across hemispheres is undefined.
	if isPointFamily(f.Geometry) {
		e.logger.Debug("bbox_fold_skip_points", "type", f.Geometry.GeoJSONType())
		return acc
	}

	if OverflowsAntimeridian(acc) {
		e.logger.Debug("bbox_fold_skip_overflow", "bbox", acc)
		return acc
	}

	if !e.prims.Intersects(f.Geometry, geo.EastHemisphere) ||
		!e.prims.Intersects(f.Geometry, geo.WestHemisphere) {
		return acc
	}

	east := e.prims.Clip(f.Geometry, geo.EastHemisphere)
	west := e.prims.Clip(f.Geometry, geo.WestHemisphere)
	if east == nil || west == nil {
		return acc
	}
	bE := e.prims.Bound(east)
	bW := e.prims.Bound(west)

	amBBox := geo.BBox{bE.MinX(), acc.MinY(), bW.MaxX(), acc.MaxY()}
	pmBBox := geo.BBox{bW.MinX(), acc.MinY(), bE.MaxX(), acc.MaxY()}

	pmWidth := bE.MaxX() + math.Abs(bW.MinX())
	amWidth := (180 - bE.MinX()) + (180 - math.Abs(bW.MaxX()))

	e.logger.Debug("bbox_fold_both_hemispheres",
		"east", bE, "west", bW, "pm_width", pmWidth, "am_width", amWidth)

	if amWidth < pmWidth {
		return amBBox
	}
	return pmBBox
}

// Compute returns the crossing-safe bounding box of a canonical collection.
func (e *Engine) Compute(fc *geojson.FeatureCollection) (geo.BBox, error) {
	acc, ok := geo.CollectionBound(e.prims, fc)
	if !ok {
		return geo.BBox{}, geoerr.MissingInput("collection has no geometry to bound")
	}

	for _, f := range fc.Features {
		acc = e.FoldFeature(f, acc)
	}

	if acc.MinX() > acc.MaxX() {
		e.logger.Debug("bbox_translate", "bbox", acc)
		return Translate(acc), nil
	}
	return acc, nil
}

func isPointFamily(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return true
	}
	return false
}
