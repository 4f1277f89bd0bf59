package store

import (
	"context"
	"fmt"

	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/model"
)

// upsertSQL dedups by hash. Metadata follows the latest save that carries
// it; bbox and area are only filled while NULL.
const upsertSQL = `
	INSERT INTO geostores
	(hash, geojson, bbox, area_ha, provider, lock, info,
	 info_iso, info_name, info_id1, info_id2, info_simplify_thresh,
	 info_use_name, info_use_id, info_simplify)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(hash) DO UPDATE SET
		provider             = COALESCE(excluded.provider, geostores.provider),
		lock                 = excluded.lock,
		info                 = COALESCE(excluded.info, geostores.info),
		info_iso             = CASE WHEN excluded.info IS NULL THEN geostores.info_iso ELSE excluded.info_iso END,
		info_name            = CASE WHEN excluded.info IS NULL THEN geostores.info_name ELSE excluded.info_name END,
		info_id1             = CASE WHEN excluded.info IS NULL THEN geostores.info_id1 ELSE excluded.info_id1 END,
		info_id2             = CASE WHEN excluded.info IS NULL THEN geostores.info_id2 ELSE excluded.info_id2 END,
		info_simplify_thresh = CASE WHEN excluded.info IS NULL THEN geostores.info_simplify_thresh ELSE excluded.info_simplify_thresh END,
		info_use_name        = CASE WHEN excluded.info IS NULL THEN geostores.info_use_name ELSE excluded.info_use_name END,
		info_use_id          = CASE WHEN excluded.info IS NULL THEN geostores.info_use_id ELSE excluded.info_use_id END,
		info_simplify        = CASE WHEN excluded.info IS NULL THEN geostores.info_simplify ELSE excluded.info_simplify END,
		bbox                 = COALESCE(geostores.bbox, excluded.bbox),
		area_ha              = COALESCE(geostores.area_ha, excluded.area_ha)
`

// Upsert inserts rec or merges it into the existing row with the same hash,
// and returns the row as stored.
//
// The insert and the read-back run in one transaction, so the returned
// record reflects exactly this write.
func (s *Store) Upsert(ctx context.Context, rec *model.Record) (*model.Record, error) {
	if rec == nil || rec.Hash == "" {
		return nil, fmt.Errorf("upsert geostore: record has no hash")
	}

	geojsonText, err := MarshalGeoJSON(rec.GeoJSON)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	bbox, err := marshalBBox(rec.BBox)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	provider, err := MarshalJSON(rec.Provider)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	info, err := MarshalJSON(rec.Info)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}
	ic := SplitInfo(rec.Info)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, upsertSQL,
		rec.Hash,
		geojsonText,
		bbox,
		NullFloat(rec.AreaHa),
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
	)
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: %w", err)
	}

	saved, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM geostores WHERE hash = ?`, rec.Hash))
	if err != nil {
		return nil, fmt.Errorf("upsert geostore: read back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert geostore: commit: %w", err)
	}

	return saved, nil
}

// SetBBox persists a computed bbox. A bbox that is already stored wins.
func (s *Store) SetBBox(ctx context.Context, hash string, bbox geo.BBox) error {
	data, err := marshalBBox(&bbox)
	if err != nil {
		return fmt.Errorf("set bbox: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE geostores SET bbox = ?
		WHERE hash = ? AND bbox IS NULL
	`, data, hash)
	if err != nil {
		return fmt.Errorf("set bbox: %w", err)
	}
	return nil
}

// PutRedirect maps oldID to hash, replacing any earlier mapping.
func (s *Store) PutRedirect(ctx context.Context, oldID, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO id_connections (old_id, hash)
		VALUES (?, ?)
		ON CONFLICT(old_id) DO UPDATE SET hash = excluded.hash
	`, oldID, hash)
	if err != nil {
		return fmt.Errorf("put redirect: %w", err)
	}
	return nil
}
