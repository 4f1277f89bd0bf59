// Package redirect resolves legacy geostore identifiers to content hashes.
//
// Ids minted before content addressing are kept in a many-to-one table.
// Every lookup consults it first; an id with no entry is taken to be a hash
// already. Dangling entries are tolerated: the mapped hash is returned even
// if no record exists under it.
package redirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultConcurrency bounds the lookups ResolveAll runs at once.
const DefaultConcurrency = 8

// Lookup reads the redirect table.
type Lookup interface {
	LookupRedirect(ctx context.Context, oldID string) (hash string, ok bool, err error)
}

// Table resolves ids against a Lookup.
//
// Thread-safety: Table holds no mutable state; it is safe for concurrent use
// when its Lookup is.
type Table struct {
	lookup      Lookup
	concurrency int
	logger      *slog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithConcurrency sets the number of parallel lookups in ResolveAll.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// WithLogger sets the logger for resolution events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Table over lookup.
func New(lookup Lookup, opts ...Option) *Table {
	t := &Table{
		lookup:      lookup,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resolve returns the hash id redirects to, or id itself when it has no
// entry.
func (t *Table) Resolve(ctx context.Context, id string) (string, error) {
	hash, ok, err := t.lookup.LookupRedirect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", id, err)
	}
	if !ok {
		return id, nil
	}
	t.logger.Debug("redirect_resolved", "old_id", id, "hash", hash)
	return hash, nil
}

// ResolveAll resolves a batch of requested ids.
//
// The batch is normalized first (see Normalize), so every distinct id is
// looked up exactly once. Lookups run concurrently. The returned hashes are
// distinct and follow the first-occurrence order of their ids.
func (t *Table) ResolveAll(ctx context.Context, ids []string) ([]string, error) {
	distinct := Normalize(ids)
	hashes := make([]string, len(distinct))
	errs := make([]error, len(distinct))

	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup
	for i, id := range distinct {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			hashes[i], errs[i] = t.Resolve(ctx, id)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return dedup(hashes), nil
}

// Normalize trims ids, drops empty ones and removes duplicates, keeping the
// first occurrence of each.
func Normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return dedup(out)
}

func dedup(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
