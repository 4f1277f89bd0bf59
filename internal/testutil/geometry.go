// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Square returns a counter-clockwise rectangular polygon.
func Square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// Collection wraps each geometry in a property-less feature.
func Collection(geoms ...orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range geoms {
		fc.Append(geojson.NewFeature(g))
	}
	return fc
}

// Fiji is a multipolygon with one member on each side of the antimeridian.
func Fiji() orb.MultiPolygon {
	return orb.MultiPolygon{
		Square(170, -20, 180, -10),
		Square(-180, -20, -170, -10),
	}
}

// SquareFeatureJSON is a Feature payload whose canonical collection is used
// across store and service tests.
const SquareFeatureJSON = `{"type":"Feature","properties":{"name":"square"},` +
	`"geometry":{"type":"Polygon","coordinates":[[[10,10],[20,10],[20,20],[10,20],[10,10]]]}}`

// SquarePolygonJSON is the bare geometry of SquareFeatureJSON.
const SquarePolygonJSON = `{"type":"Polygon","coordinates":[[[10,10],[20,10],[20,20],[10,20],[10,10]]]}`

// FijiFeatureCollectionJSON is an antimeridian-crossing collection.
const FijiFeatureCollectionJSON = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":null,` +
	`"geometry":{"type":"MultiPolygon","coordinates":[` +
	`[[[170,-20],[180,-20],[180,-10],[170,-10],[170,-20]]],` +
	`[[[-180,-20],[-170,-20],[-170,-10],[-180,-10],[-180,-20]]]]}}]}`
