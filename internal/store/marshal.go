package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/model"
)

// MarshalGeoJSON returns the canonical serialization, so the text stored in
// the database hashes to the row's key.
func MarshalGeoJSON(fc *geojson.FeatureCollection) (string, error) {
	data, err := canon.MarshalCanonical(fc)
	if err != nil {
		return "", fmt.Errorf("marshal geojson: %w", err)
	}
	return string(data), nil
}

// UnmarshalGeoJSON decodes a stored collection.
func UnmarshalGeoJSON(data string) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal geojson: %w", err)
	}
	return fc, nil
}

// MarshalJSON encodes v as JSON text with HTML escaping disabled, or NULL
// when v is nil.
func MarshalJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return sql.NullString{}, fmt.Errorf("marshal %T: %w", v, err)
	}
	return sql.NullString{String: strings.TrimSpace(buf.String()), Valid: true}, nil
}

// UnmarshalJSON decodes a nullable JSON column; NULL yields nil.
func UnmarshalJSON[T any](data sql.NullString) (*T, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(data.String), v); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}

// InfoColumns holds the denormalized lookup keys of an Info. Both SQL
// backends store them beside the info document.
type InfoColumns struct {
	ISO, Name, UseName sql.NullString
	ID1, ID2, UseID    sql.NullInt64
	SimplifyThresh     sql.NullFloat64
	Simplify           bool
}

// SplitInfo extracts the lookup keys of info. A nil info yields all NULLs.
func SplitInfo(info *model.Info) InfoColumns {
	var c InfoColumns
	if info == nil {
		return c
	}
	c.ISO = nullString(info.ISO)
	c.Name = nullString(info.Name)
	c.ID1 = NullInt(info.ID1)
	c.ID2 = NullInt(info.ID2)
	if info.SimplifyThresh != nil {
		c.SimplifyThresh = sql.NullFloat64{Float64: *info.SimplifyThresh, Valid: true}
	}
	if info.Use != nil {
		c.UseName = nullString(info.Use.Use)
		c.UseID = sql.NullInt64{Int64: int64(info.Use.ID), Valid: true}
	}
	c.Simplify = info.Simplify
	return c
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullInt maps a nil pointer to NULL.
func NullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// NullFloat maps a nil pointer to NULL.
func NullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func marshalBBox(b *geo.BBox) (sql.NullString, error) {
	return MarshalJSON(b)
}

func unmarshalBBox(data sql.NullString) (*geo.BBox, error) {
	return UnmarshalJSON[geo.BBox](data)
}
