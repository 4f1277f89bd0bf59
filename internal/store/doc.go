// Package store provides SQLite-backed durable storage for geostore records.
//
// Two tables:
//   - geostores: one row per content hash (PRIMARY KEY), holding the
//     canonical GeoJSON text, the lazily filled bbox and the opaque
//     provider/info/lock metadata
//   - id_connections: legacy id → hash redirects, many-to-one
//
// # Critical Patterns
//
// Dedup by hash
//   - Upsert is a single INSERT … ON CONFLICT(hash) DO UPDATE, so concurrent
//     saves of the same shape converge on one row without in-process locks
//   - provider, info and lock follow the latest save; bbox and area_ha are
//     only filled while NULL
//
// BBox is write-once
//   - SetBBox updates WHERE bbox IS NULL; a persisted bbox is authoritative
//
// Null-safe info lookups
//   - FindAdmin / FindUse compare with IS so a NULL id1 or threshold matches
//     a NULL argument
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// The postgres subpackage implements the same contract on lib/pq.
package store
