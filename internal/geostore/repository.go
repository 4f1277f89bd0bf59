package geostore

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/roach88/geostore/internal/canon"
	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/model"
)

// Repository is the durable record store.
//
// Implementations must make Upsert atomic per hash: it is the only thing
// that keeps concurrent saves of identical content from creating duplicates.
type Repository interface {
	// Upsert inserts rec or merges it into the row with the same hash and
	// returns the stored record. Provider, Info and Lock follow rec when set;
	// BBox and AreaHa are only filled while unset.
	Upsert(ctx context.Context, rec *model.Record) (*model.Record, error)

	// FindByHash returns a RecordNotFound error when hash is not stored.
	FindByHash(ctx context.Context, hash string) (*model.Record, error)

	// FindMany returns the stored subset of hashes in request order.
	FindMany(ctx context.Context, hashes []string) ([]*model.Record, error)

	// SetBBox stores bbox unless the record already has one.
	SetBBox(ctx context.Context, hash string, bbox geo.BBox) error

	FindAdmin(ctx context.Context, iso string, id1, id2 *int, thresh *float64) (*model.Record, bool, error)
	FindUse(ctx context.Context, use string, id int, simplify bool, thresh *float64) (*model.Record, bool, error)
	NationalList(ctx context.Context) ([]model.CountryEntry, error)

	LookupRedirect(ctx context.Context, oldID string) (hash string, ok bool, err error)
	PutRedirect(ctx context.Context, oldID, hash string) error
}

// Repairer fixes invalid geometries. Implemented by featureserv.Client.
type Repairer interface {
	Repair(ctx context.Context, g orb.Geometry, family canon.Family) (orb.Geometry, error)
}
