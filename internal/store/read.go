package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/model"
)

const recordColumns = `hash, geojson, bbox, area_ha, provider, lock, info`

type rowScanner interface {
	Scan(dest ...any) error
}

// FindByHash returns the record stored under hash.
// Returns a RecordNotFound error when no row exists.
func (s *Store) FindByHash(ctx context.Context, hash string) (*model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM geostores WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, geoerr.RecordNotFound(hash)
	}
	if err != nil {
		return nil, fmt.Errorf("find geostore %s: %w", hash, err)
	}
	return rec, nil
}

// FindMany returns the records stored under hashes in one query.
// Missing hashes are omitted; the result follows the request order and
// holds each record once.
//
// Returns empty slice (not nil) if nothing matches.
func (s *Store) FindMany(ctx context.Context, hashes []string) ([]*model.Record, error) {
	if len(hashes) == 0 {
		return []*model.Record{}, nil
	}

	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM geostores WHERE hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query geostores: %w", err)
	}
	defer rows.Close()

	byHash := make(map[string]*model.Record, len(hashes))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		byHash[rec.Hash] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate geostores: %w", err)
	}

	return OrderByRequest(hashes, byHash), nil
}

// FindAdmin returns the administrative boundary stored under the given info
// key. NULL columns match nil arguments.
func (s *Store) FindAdmin(ctx context.Context, iso string, id1, id2 *int, thresh *float64) (*model.Record, bool, error) {
	return s.findOne(ctx, `
		SELECT `+recordColumns+` FROM geostores
		WHERE info_iso = ?
		  AND info_id1 IS ?
		  AND info_id2 IS ?
		  AND info_simplify_thresh IS ?
		  AND info_use_name IS NULL
		ORDER BY hash
		LIMIT 1
	`, iso, NullInt(id1), NullInt(id2), NullFloat(thresh))
}

// FindUse returns the land-use boundary stored under the given info key.
func (s *Store) FindUse(ctx context.Context, use string, id int, simplify bool, thresh *float64) (*model.Record, bool, error) {
	return s.findOne(ctx, `
		SELECT `+recordColumns+` FROM geostores
		WHERE info_use_name = ?
		  AND info_use_id = ?
		  AND info_simplify = ?
		  AND info_simplify_thresh IS ?
		ORDER BY hash
		LIMIT 1
	`, use, id, simplify, NullFloat(thresh))
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*model.Record, bool, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find by info: %w", err)
	}
	return rec, true, nil
}

// NationalList returns every stored country-level boundary ordered by ISO.
//
// Returns empty slice (not nil) if none are stored.
func (s *Store) NationalList(ctx context.Context) ([]model.CountryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, info_iso, COALESCE(info_name, '')
		FROM geostores
		WHERE info_iso > '' AND info_id1 IS NULL
		ORDER BY info_iso, hash
	`)
	if err != nil {
		return nil, fmt.Errorf("query national list: %w", err)
	}
	defer rows.Close()

	entries := []model.CountryEntry{}
	for rows.Next() {
		var e model.CountryEntry
		if err := rows.Scan(&e.Hash, &e.ISO, &e.Name); err != nil {
			return nil, fmt.Errorf("scan national list: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate national list: %w", err)
	}
	return entries, nil
}

// LookupRedirect returns the hash a legacy id maps to. ok is false when the
// id has no mapping.
func (s *Store) LookupRedirect(ctx context.Context, oldID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM id_connections WHERE old_id = ?`, oldID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup redirect %s: %w", oldID, err)
	}
	return hash, true, nil
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		rec         model.Record
		geojsonText string
		bbox        sql.NullString
		areaHa      sql.NullFloat64
		provider    sql.NullString
		info        sql.NullString
	)

	if err := row.Scan(&rec.Hash, &geojsonText, &bbox, &areaHa, &provider, &rec.Lock, &info); err != nil {
		return nil, err
	}

	return decodeRecord(&rec, geojsonText, bbox, areaHa, provider, info)
}

// decodeRecord fills the JSON-encoded columns of rec.
func decodeRecord(rec *model.Record, geojsonText string, bbox sql.NullString, areaHa sql.NullFloat64,
	provider, info sql.NullString) (*model.Record, error) {
	var err error
	if rec.GeoJSON, err = UnmarshalGeoJSON(geojsonText); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if rec.BBox, err = unmarshalBBox(bbox); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if areaHa.Valid {
		v := areaHa.Float64
		rec.AreaHa = &v
	}
	if rec.Provider, err = UnmarshalJSON[model.Provider](provider); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if rec.Info, err = UnmarshalJSON[model.Info](info); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	return rec, nil
}

// OrderByRequest lays out found records in request order, once each.
// Returns empty slice (not nil) if nothing was found.
func OrderByRequest(hashes []string, byHash map[string]*model.Record) []*model.Record {
	out := make([]*model.Record, 0, len(byHash))
	seen := make(map[string]bool, len(byHash))
	for _, h := range hashes {
		rec, ok := byHash[h]
		if !ok || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, rec)
	}
	return out
}
