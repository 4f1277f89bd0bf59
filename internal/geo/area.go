package geo

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// earthRadius is the WGS84 equatorial radius in meters.
const earthRadius = 6378137.0

// Area returns the geodesic area of every feature in fc in square meters.
// Points and lines contribute nothing.
func Area(fc *geojson.FeatureCollection) float64 {
	var total float64
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		total += GeometryArea(f.Geometry)
	}
	return total
}

// Hectares returns Area(fc) in hectares.
func Hectares(fc *geojson.FeatureCollection) float64 {
	return Area(fc) / 10000
}

// GeometryArea returns the geodesic area of g in square meters.
func GeometryArea(g orb.Geometry) float64 {
	switch g := g.(type) {
	case orb.Polygon:
		return polygonArea(g)
	case orb.MultiPolygon:
		var total float64
		for _, p := range g {
			total += polygonArea(p)
		}
		return total
	case orb.Collection:
		var total float64
		for _, member := range g {
			total += GeometryArea(member)
		}
		return total
	case orb.Ring:
		return ringArea(g)
	case orb.Bound:
		return polygonArea(g.ToPolygon())
	}
	return 0
}

func polygonArea(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	area := ringArea(p[0])
	for _, hole := range p[1:] {
		area -= ringArea(hole)
	}
	if area < 0 {
		return 0
	}
	return area
}

// ringArea measures the smaller of the two regions a ring bounds, so ring
// orientation does not matter.
func ringArea(r orb.Ring) float64 {
	pts := []orb.Point(r)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return 0
	}

	vertices := make([]s2.Point, len(pts))
	for i, pt := range pts {
		vertices[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(pt[1], pt[0]))
	}

	loop := s2.LoopFromPoints(vertices)
	loop.Normalize()
	return loop.Area() * earthRadius * earthRadius
}
