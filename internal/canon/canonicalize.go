package canon

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/geoerr"
)

// Family is the geometry-type code understood by the repair function.
type Family int

const (
	FamilyPoint   Family = 1
	FamilyLine    Family = 2
	FamilyPolygon Family = 3
)

// Canonicalize converts in to a canonical FeatureCollection.
//
// A non-nil props replaces the properties of every output feature; a nil
// props keeps whatever each input feature carried (geometries get null).
func Canonicalize(in *Input, props geojson.Properties) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if in == nil {
		return fc
	}

	switch in.Kind {
	case KindFeatureCollection:
		for _, f := range in.Collection.Features {
			if f == nil {
				continue
			}
			p := f.Properties
			if props != nil {
				p = props.Clone()
			}
			fc.Append(feature(f.Geometry, p))
		}
	case KindFeature:
		p := in.Feature.Properties
		if props != nil {
			p = props
		}
		fc.Append(feature(in.Feature.Geometry, p))
	default:
		fc.Append(feature(in.Geometry, props))
	}
	return fc
}

// feature builds a Feature without orb's default empty property map, so a
// nil props serializes as null.
func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	return &geojson.Feature{Type: "Feature", Geometry: g, Properties: props}
}

// PropertiesOf returns the properties that survive geometry repair.
func PropertiesOf(in *Input) geojson.Properties {
	if in == nil {
		return nil
	}
	switch in.Kind {
	case KindFeatureCollection:
		if len(in.Collection.Features) == 0 || in.Collection.Features[0] == nil {
			return nil
		}
		return in.Collection.Features[0].Properties
	case KindFeature:
		return in.Feature.Properties
	}
	return nil
}

// ExtractGeometry returns the geometry of the first feature, or nil.
func ExtractGeometry(fc *geojson.FeatureCollection) orb.Geometry {
	if fc == nil || len(fc.Features) == 0 || fc.Features[0] == nil {
		return nil
	}
	return fc.Features[0].Geometry
}

// FamilyOf maps a geometry to its repair family.
func FamilyOf(g orb.Geometry) (Family, error) {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return FamilyPoint, nil
	case orb.LineString, orb.MultiLineString:
		return FamilyLine, nil
	case orb.Polygon, orb.MultiPolygon:
		return FamilyPolygon, nil
	case nil:
		return 0, geoerr.UnsupportedGeometryType("")
	}
	return 0, geoerr.UnsupportedGeometryType(g.GeoJSONType())
}
