// Package cache puts a Redis read-through cache in front of a
// geostore.Repository.
//
// Only hash-keyed reads are cached: FindByHash and LookupRedirect. Writes go
// straight to the wrapped repository and drop the affected keys. Redis
// failures are logged and treated as misses; the repository stays the source
// of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/geostore/internal/geo"
	"github.com/roach88/geostore/internal/geostore"
	"github.com/roach88/geostore/internal/metrics"
	"github.com/roach88/geostore/internal/model"
)

// DefaultTTL applies when no positive TTL is configured.
const DefaultTTL = time.Hour

// DefaultPrefix namespaces every key this package writes.
const DefaultPrefix = "geostore"

// Repository wraps a geostore.Repository. Methods it does not override go
// to the wrapped repository unchanged.
type Repository struct {
	geostore.Repository

	rc     *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ geostore.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithTTL sets the entry lifetime. Values ≤ 0 keep DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(p string) Option {
	return func(r *Repository) {
		if p != "" {
			r.prefix = p
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// New wraps inner. With a nil client every call passes through.
func New(inner geostore.Repository, rc *redis.Client, opts ...Option) *Repository {
	r := &Repository{
		Repository: inner,
		rc:         rc,
		ttl:        DefaultTTL,
		prefix:     DefaultPrefix,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) recordKey(hash string) string { return r.prefix + ":record:" + hash }
func (r *Repository) redirectKey(id string) string { return r.prefix + ":redirect:" + id }

// FindByHash serves cached records and fills the cache on a miss.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*model.Record, error) {
	if r.rc == nil {
		return r.Repository.FindByHash(ctx, hash)
	}

	key := r.recordKey(hash)
	if s, ok := r.get(ctx, key); ok {
		var rec model.Record
		if err := json.Unmarshal([]byte(s), &rec); err == nil {
			metrics.CacheHitsTotal.Inc()
			return &rec, nil
		}
		r.logger.Warn("cache_decode_error", "key", key)
	}
	metrics.CacheMissesTotal.Inc()

	rec, err := r.Repository.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rec); err == nil {
		r.set(ctx, key, string(data))
	}
	return rec, nil
}

// LookupRedirect caches mapped ids. Absent ids are not cached.
func (r *Repository) LookupRedirect(ctx context.Context, oldID string) (string, bool, error) {
	if r.rc == nil {
		return r.Repository.LookupRedirect(ctx, oldID)
	}

	key := r.redirectKey(oldID)
	if hash, ok := r.get(ctx, key); ok {
		metrics.CacheHitsTotal.Inc()
		return hash, true, nil
	}
	metrics.CacheMissesTotal.Inc()

	hash, ok, err := r.Repository.LookupRedirect(ctx, oldID)
	if err != nil || !ok {
		return hash, ok, err
	}
	r.set(ctx, key, hash)
	return hash, true, nil
}

// Upsert writes through and drops the cached record.
func (r *Repository) Upsert(ctx context.Context, rec *model.Record) (*model.Record, error) {
	saved, err := r.Repository.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	r.del(ctx, r.recordKey(saved.Hash))
	return saved, nil
}

// SetBBox writes through and drops the cached record.
func (r *Repository) SetBBox(ctx context.Context, hash string, bbox geo.BBox) error {
	if err := r.Repository.SetBBox(ctx, hash, bbox); err != nil {
		return err
	}
	r.del(ctx, r.recordKey(hash))
	return nil
}

// PutRedirect writes through and drops the cached mapping.
func (r *Repository) PutRedirect(ctx context.Context, oldID, hash string) error {
	if err := r.Repository.PutRedirect(ctx, oldID, hash); err != nil {
		return err
	}
	r.del(ctx, r.redirectKey(oldID))
	return nil
}

func (r *Repository) get(ctx context.Context, key string) (string, bool) {
	s, err := r.rc.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Warn("cache_get_error", "key", key, "err", err)
		return "", false
	}
	return s, true
}

func (r *Repository) set(ctx context.Context, key, value string) {
	if err := r.rc.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.logger.Warn("cache_set_error", "key", key, "err", err)
	}
}

func (r *Repository) del(ctx context.Context, key string) {
	if r.rc == nil {
		return
	}
	if err := r.rc.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("cache_del_error", "key", key, "err", err)
	}
}
