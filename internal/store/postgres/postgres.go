// Package postgres is the PostgreSQL geostore repository. It honors the same
// contract as the SQLite store and shares its column encoding.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/model"
	"github.com/roach88/geostore/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = `hash, geojson, bbox, area_ha, provider, lock, info`

// Store is a PostgreSQL-backed repository.
type Store struct {
	db *sql.DB
}

// Option configures the connection pool.
type Option func(*sql.DB)

// WithMaxOpenConns sets the pool size.
//
// Default: 50
func WithMaxOpenConns(n int) Option {
	return func(db *sql.DB) { db.SetMaxOpenConns(n) }
}

// WithMaxIdleConns sets the idle pool size.
//
// Default: 25
func WithMaxIdleConns(n int) Option {
	return func(db *sql.DB) { db.SetMaxIdleConns(n) }
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	for _, opt := range opts {
		opt(db)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// upsertSQL mirrors the SQLite statement; RETURNING does the read-back.
const upsertSQL = `
	INSERT INTO geostores AS g
	(hash, geojson, bbox, area_ha, provider, lock, info,
	 info_iso, info_name, info_id1, info_id2, info_simplify_thresh,
	 info_use_name, info_use_id, info_simplify)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (hash) DO UPDATE SET
		provider             = COALESCE(EXCLUDED.provider, g.provider),
		lock                 = EXCLUDED.lock,
		info                 = COALESCE(EXCLUDED.info, g.info),
		info_iso             = CASE WHEN EXCLUDED.info IS NULL THEN g.info_iso ELSE EXCLUDED.info_iso END,
		info_name            = CASE WHEN EXCLUDED.info IS NULL THEN g.info_name ELSE EXCLUDED.info_name END,
		info_id1             = CASE WHEN EXCLUDED.info IS NULL THEN g.info_id1 ELSE EXCLUDED.info_id1 END,
		info_id2             = CASE WHEN EXCLUDED.info IS NULL THEN g.info_id2 ELSE EXCLUDED.info_id2 END,
		info_simplify_thresh = CASE WHEN EXCLUDED.info IS NULL THEN g.info_simplify_thresh ELSE EXCLUDED.info_simplify_thresh END,
		info_use_name        = CASE WHEN EXCLUDED.info IS NULL THEN g.info_use_name ELSE EXCLUDED.info_use_name END,
		info_use_id          = CASE WHEN EXCLUDED.info IS NULL THEN g.info_use_id ELSE EXCLUDED.info_use_id END,
		info_simplify        = CASE WHEN EXCLUDED.info IS NULL THEN g.info_simplify ELSE EXCLUDED.info_simplify END,
		bbox                 = COALESCE(g.bbox, EXCLUDED.bbox),
		area_ha              = COALESCE(g.area_ha, EXCLUDED.area_ha)
	RETURNING ` + recordColumns

// Upsert inserts rec or merges it into the row with the same hash, and
// returns the row as stored.
func (s *Store) Upsert(ctx context.Context, rec *model.Record) (*model.Record, error) {
	if rec == nil || rec.Hash == "" {
		return nil, fmt.Errorf("upsert geostore: record has no hash")
	}

	geojsonText, err := store.MarshalGeoJSON(rec.GeoJSON)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	provider, err := store.MarshalJSON(rec.Provider)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	info, err := store.MarshalJSON(rec.Info)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	ic := store.SplitInfo(rec.Info)

	saved, err := scanRecord(s.db.QueryRowContext(ctx, upsertSQL,
		rec.Hash,
		geojsonText,
		bboxArray(rec.BBox),
		store.NullFloat(rec.AreaHa),
		provider,
		rec.Lock,
		info,
		ic.ISO,
		ic.Name,
		ic.ID1,
		ic.ID2,
		ic.SimplifyThresh,
		ic.UseName,
		ic.UseID,
		ic.Simplify,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	return saved, nil
}

// FindByHash returns a RecordNotFound error when hash is not stored.
func (s *Store) FindByHash(ctx context.Context, hash string) (*model.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM geostores WHERE hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, geoerr.RecordNotFound(hash)
	}
	if err != nil {
		return nil, fmt.Errorf("find geostore %s: %w", hash, err)
	}
	return rec, nil
}

// FindMany returns the stored subset of hashes in request order.
func (s *Store) FindMany(ctx context.Context, hashes []string) ([]*model.Record, error) {
	if len(hashes) == 0 {
		return []*model.Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM geostores WHERE hash = ANY($1)`, pq.Array(hashes))
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
	return store.OrderByRequest(hashes, byHash), nil
}

// SetBBox persists a computed bbox. A bbox that is already stored wins.
func (s *Store) SetBBox(ctx context.Context, hash string, bbox geo.BBox) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE geostores SET bbox = $1
		WHERE hash = $2 AND bbox IS NULL
	`, bboxArray(&bbox), hash)
	if err != nil {
		return fmt.Errorf("set bbox: %w", err)
	}
	return nil
}

// FindAdmin returns the administrative boundary stored under the given info
// key. NULL columns match nil arguments.
func (s *Store) FindAdmin(ctx context.Context, iso string, id1, id2 *int, thresh *float64) (*model.Record, bool, error) {
	return s.findOne(ctx, `
		SELECT `+recordColumns+` FROM geostores
		WHERE info_iso = $1
		  AND info_id1 IS NOT DISTINCT FROM $2
		  AND info_id2 IS NOT DISTINCT FROM $3
		  AND info_simplify_thresh IS NOT DISTINCT FROM $4
		  AND info_use_name IS NULL
		ORDER BY hash
		LIMIT 1
	`, iso, store.NullInt(id1), store.NullInt(id2), store.NullFloat(thresh))
}

// FindUse returns the land-use boundary stored under the given info key.
func (s *Store) FindUse(ctx context.Context, use string, id int, simplify bool, thresh *float64) (*model.Record, bool, error) {
	return s.findOne(ctx, `
		SELECT `+recordColumns+` FROM geostores
		WHERE info_use_name = $1
		  AND info_use_id = $2
		  AND info_simplify = $3
		  AND info_simplify_thresh IS NOT DISTINCT FROM $4
		ORDER BY hash
		LIMIT 1
	`, use, id, simplify, store.NullFloat(thresh))
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
		WHERE info_iso <> '' AND info_id1 IS NULL
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

// LookupRedirect returns the hash a legacy id maps to.
func (s *Store) LookupRedirect(ctx context.Context, oldID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM id_connections WHERE old_id = $1`, oldID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup redirect %s: %w", oldID, err)
	}
	return hash, true, nil
}

// PutRedirect maps oldID to hash, replacing any earlier mapping.
func (s *Store) PutRedirect(ctx context.Context, oldID, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO id_connections (old_id, hash)
		VALUES ($1, $2)
		ON CONFLICT (old_id) DO UPDATE SET hash = EXCLUDED.hash
	`, oldID, hash)
	if err != nil {
		return fmt.Errorf("put redirect: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		rec         model.Record
		geojsonText string
		bbox        pq.Float64Array
		areaHa      sql.NullFloat64
		provider    sql.NullString
		info        sql.NullString
	)
	if err := row.Scan(&rec.Hash, &geojsonText, &bbox, &areaHa, &provider, &rec.Lock, &info); err != nil {
		return nil, err
	}

	var err error
	if rec.GeoJSON, err = store.UnmarshalGeoJSON(geojsonText); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if rec.BBox, err = fromArray(bbox); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if areaHa.Valid {
		v := areaHa.Float64
		rec.AreaHa = &v
	}
	if rec.Provider, err = store.UnmarshalJSON[model.Provider](provider); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	if rec.Info, err = store.UnmarshalJSON[model.Info](info); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Hash, err)
	}
	return &rec, nil
}

func bboxArray(b *geo.BBox) pq.Float64Array {
	if b == nil {
		return nil
	}
	return pq.Float64Array(b[:])
}

func fromArray(a pq.Float64Array) (*geo.BBox, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) != len(geo.BBox{}) {
		return nil, fmt.Errorf("bbox has %d values, want 4", len(a))
	}
	var b geo.BBox
	copy(b[:], a)
	return &b, nil
}
