// Package geo wraps the computational-geometry capabilities geostore consumes:
// raw bounding boxes, box intersection and clipping (paulmach/orb) and
// geodesic area (golang/geo s2). Nothing here knows about the antimeridian;
// that logic lives in package antimeridian on top of Primitives.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
)

// BBox is a bounding box in [minX, minY, maxX, maxY] order.
type BBox [4]float64

func (b BBox) MinX() float64 { return b[0] }
func (b BBox) MinY() float64 { return b[1] }
func (b BBox) MaxX() float64 { return b[2] }
func (b BBox) MaxY() float64 { return b[3] }

// Bound converts b to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b[0], b[1]},
		Max: orb.Point{b[2], b[3]},
	}
}

// FromBound converts an orb.Bound to a BBox.
func FromBound(b orb.Bound) BBox {
	return BBox{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Hemisphere half-boxes used to detect and split antimeridian crossings.
var (
	WestHemisphere = BBox{-180, -90, 0, 90}
	EastHemisphere = BBox{0, -90, 180, 90}
)

// Primitives is the geometry capability consumed by the bbox engine.
type Primitives interface {
	// Bound returns the raw extent of g.
	Bound(g orb.Geometry) BBox

	// Intersects reports whether g shares at least one point with box.
	Intersects(g orb.Geometry, box BBox) bool

	// Clip returns the part of g inside box, or nil when nothing remains.
	Clip(g orb.Geometry, box BBox) orb.Geometry
}

// OrbPrimitives implements Primitives with paulmach/orb.
type OrbPrimitives struct{}

var _ Primitives = OrbPrimitives{}

func (OrbPrimitives) Bound(g orb.Geometry) BBox {
	return FromBound(g.Bound())
}

func (p OrbPrimitives) Intersects(g orb.Geometry, box BBox) bool {
	if g == nil || !g.Bound().Intersects(box.Bound()) {
		return false
	}
	return !IsEmpty(p.Clip(g, box))
}

func (OrbPrimitives) Clip(g orb.Geometry, box BBox) orb.Geometry {
	if g == nil {
		return nil
	}
	clipped := clip.Geometry(box.Bound(), g)
	if IsEmpty(clipped) {
		return nil
	}
	return clipped
}

// IsEmpty reports whether g is nil or has no coordinates. orb's clip helpers
// may hand back typed empty slices, so a nil check alone is not enough.
func IsEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Ring:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}
	return false
}

// CollectionBound returns the union of the feature extents of fc.
// ok is false when fc has no feature with a geometry.
func CollectionBound(p Primitives, fc *geojson.FeatureCollection) (box BBox, ok bool) {
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := p.Bound(f.Geometry)
		if !ok {
			box, ok = b, true
			continue
		}
		box = union(box, b)
	}
	return box, ok
}

func union(a, b BBox) BBox {
	return BBox{
		min(a[0], b[0]),
		min(a[1], b[1]),
		max(a[2], b[2]),
		max(a[3], b[3]),
	}
}
