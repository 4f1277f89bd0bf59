// Package model defines the persisted geostore record and its satellites.
package model

import (
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/geo"
)

// Record is one stored geometry, keyed by the content hash of its canonical
// serialization.
//
// Provider, Lock and Info are opaque to the pipeline and never participate in
// the hash. A save of identical content overwrites Provider and Info when it
// supplies them and keeps the stored values otherwise; Lock always follows
// the latest save.
type Record struct {
	Hash     string                     `json:"hash"`
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
	BBox     *geo.BBox                  `json:"bbox"`
	AreaHa   *float64                   `json:"areaHa"`
	Provider *Provider                  `json:"provider,omitempty"`
	Lock     bool                       `json:"lock"`
	Info     *Info                      `json:"info,omitempty"`
}

// Provider describes where a geometry came from.
type Provider struct {
	Type   string `json:"type,omitempty"`
	Table  string `json:"table,omitempty"`
	User   string `json:"user,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// Info classifies administrative and land-use boundaries. The boundary
// catalog uses it as a lookup key.
type Info struct {
	ISO            string   `json:"iso,omitempty"`
	Name           string   `json:"name,omitempty"`
	ID1            *int     `json:"id1,omitempty"`
	ID2            *int     `json:"id2,omitempty"`
	Gadm           string   `json:"gadm,omitempty"`
	WDPAID         *int     `json:"wdpaid,omitempty"`
	Use            *UseInfo `json:"use,omitempty"`
	Simplify       bool     `json:"simplify,omitempty"`
	SimplifyThresh *float64 `json:"simplifyThresh,omitempty"`
}

// UseInfo identifies a land-use feature by source table and id.
type UseInfo struct {
	Use string `json:"use"`
	ID  int    `json:"id"`
}

// Redirect maps a legacy identifier to a content hash. Many old ids may point
// at one hash; the target need not exist.
type Redirect struct {
	OldID string `json:"old_id" yaml:"old_id"`
	Hash  string `json:"hash" yaml:"hash"`
}

// CountryEntry is the national-list projection of a level-0 boundary.
type CountryEntry struct {
	Hash string `json:"geostoreId"`
	ISO  string `json:"iso"`
	Name string `json:"name"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
