// Package store provides persistent storage for beacon using SQLite.
//
// # Data Models
//
//   - Client: Tenant account with channel preferences and brand voice;
//     read-only from beacon's perspective
//   - Idea: Candidate content concept (new -> drafted -> discarded)
//   - Post: Draft or published artifact derived from one idea
//     (pending -> approved -> published, or rejected/failed)
//   - Run: One execution record of a workflow for one client
//
// Ideas and posts are strictly scoped to one client and never
// cross-referenced across clients.
//
// # Concurrency
//
// The record store is the single source of truth. State transitions use
// conditional updates (UPDATE ... WHERE state = ?) so that two concurrent
// runs touching the same idea or post resolve deterministically: the loser
// sees ErrStaleState and skips the item.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Testing
//
// Use NewMockStore() for unit tests; use NewSQLiteStore with t.TempDir()
// for integration tests with real SQLite.
package store
