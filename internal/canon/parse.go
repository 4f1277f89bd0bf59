package canon

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/geoerr"
)

// Kind classifies a parsed payload.
type Kind int

const (
	KindGeometry Kind = iota + 1
	KindFeature
	KindFeatureCollection
	KindGeometryCollection
)

func (k Kind) String() string {
	switch k {
	case KindGeometry:
		return "Geometry"
	case KindFeature:
		return "Feature"
	case KindFeatureCollection:
		return "FeatureCollection"
	case KindGeometryCollection:
		return "GeometryCollection"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Input is a decoded payload. Exactly one of Geometry, Feature and Collection
// is set, according to Kind. For KindGeometryCollection, Geometry holds the
// first member.
type Input struct {
	Kind       Kind
	Geometry   orb.Geometry
	Feature    *geojson.Feature
	Collection *geojson.FeatureCollection
}

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// envelope mirrors the type-tag skeleton of a payload. Coordinates are kept
// raw and only checked for position size.
type envelope struct {
	Type        string          `json:"type"`
	Geometry    *envelope       `json:"geometry"`
	Features    []envelope      `json:"features"`
	Geometries  []envelope      `json:"geometries"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Parse decodes a GeoJSON payload. Every type tag is checked before any
// coordinates are decoded, so an unknown tag anywhere in the document fails
// with UnsupportedGeometryType. Positions must be two-dimensional: the
// decoded geometry has no room for a third ordinate, so one is rejected with
// InvalidArgument rather than dropped.
func Parse(data []byte) (*Input, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, geoerr.MissingInput("no geojson supplied")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, geoerr.InvalidArgument(fmt.Sprintf("malformed geojson: %v", err))
	}

	switch env.Type {
	case "FeatureCollection":
		for i := range env.Features {
			if err := checkFeature(&env.Features[i]); err != nil {
				return nil, err
			}
		}
		fc, err := geojson.UnmarshalFeatureCollection(trimmed)
		if err != nil {
			return nil, geoerr.InvalidArgument(fmt.Sprintf("malformed feature collection: %v", err))
		}
		return &Input{Kind: KindFeatureCollection, Collection: fc}, nil

	case "Feature":
		if err := checkFeature(&env); err != nil {
			return nil, err
		}
		f, err := geojson.UnmarshalFeature(trimmed)
		if err != nil {
			return nil, geoerr.InvalidArgument(fmt.Sprintf("malformed feature: %v", err))
		}
		return &Input{Kind: KindFeature, Feature: f}, nil
	}

	if err := checkGeometry(&env); err != nil {
		return nil, err
	}
	g, err := geojson.UnmarshalGeometry(trimmed)
	if err != nil {
		return nil, geoerr.InvalidArgument(fmt.Sprintf("malformed geometry: %v", err))
	}

	if env.Type == "GeometryCollection" {
		if len(env.Geometries) == 0 {
			return nil, geoerr.MissingInput("geometry collection is empty")
		}
		coll, _ := g.Geometry().(orb.Collection)
		if len(coll) == 0 {
			return nil, geoerr.MissingInput("geometry collection is empty")
		}
		return &Input{Kind: KindGeometryCollection, Geometry: coll[0]}, nil
	}
	return &Input{Kind: KindGeometry, Geometry: g.Geometry()}, nil
}

// FromGeometry wraps an already decoded geometry.
func FromGeometry(g orb.Geometry) *Input {
	if coll, ok := g.(orb.Collection); ok && len(coll) > 0 {
		return &Input{Kind: KindGeometryCollection, Geometry: coll[0]}
	}
	return &Input{Kind: KindGeometry, Geometry: g}
}

func checkFeature(env *envelope) error {
	if env.Type != "Feature" {
		return geoerr.UnsupportedGeometryType(env.Type)
	}
	if env.Geometry == nil {
		return geoerr.MissingInput("feature has no geometry")
	}
	return checkGeometry(env.Geometry)
}

func checkGeometry(env *envelope) error {
	if !geometryTypes[env.Type] {
		return geoerr.UnsupportedGeometryType(env.Type)
	}
	for i := range env.Geometries {
		if err := checkGeometry(&env.Geometries[i]); err != nil {
			return err
		}
	}
	if len(env.Coordinates) == 0 {
		return nil
	}
	var coords any
	if err := json.Unmarshal(env.Coordinates, &coords); err != nil {
		return geoerr.InvalidArgument(fmt.Sprintf("malformed coordinates: %v", err))
	}
	return checkPositions(env.Type, coords)
}

// checkPositions walks nested coordinate arrays and rejects any position
// with more than two numbers.
func checkPositions(typ string, v any) error {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	if _, isNumber := arr[0].(float64); isNumber {
		if len(arr) > 2 {
			return geoerr.InvalidArgument(fmt.Sprintf(
				"%s has a position with %d coordinates; only [lng, lat] is supported", typ, len(arr)))
		}
		return nil
	}
	for _, child := range arr {
		if err := checkPositions(typ, child); err != nil {
			return err
		}
	}
	return nil
}
