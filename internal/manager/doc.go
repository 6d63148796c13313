// Package manager owns the name to model mapping and keeps it consistent
// across the in-memory cache, the local store directory and the optional
// remote mirror. It is structured into small files by concern:
//
//   - manager.go: core Manager type and read-only queries.
//   - config.go: Config, package defaults and New (startup load + reconcile).
//   - types.go: persisted Record type.
//   - errors.go: error kinds and IsXxx helpers.
//   - save.go, load.go, delete.go: the three mutating paths.
//   - metadata.go: metadata.json read/rewrite and startup reconciliation.
//   - remote.go: background mirror worker; Close drains it.
//   - events.go, eventpub_memory.go: lifecycle event seam.
//   - metrics.go, status_report.go: prometheus counters and /status.
//
// Locking: one RWMutex guards the cache, the metadata map and the metadata
// file. Remote transfers never run under it. Uploads and deletes go through a
// single FIFO worker so per-name ordering is preserved; downloads happen in
// Load outside the lock and are coalesced per name.
package manager
