// Package store provides durable storage for the control-plane collections
// using SQLite.
//
// Each collection (audit log, captured direct messages, custom commands,
// guild permission configs, status override, waitlist) is an independent
// record set: it is loaded fully into memory when the store is opened and
// its backing table is rewritten fully, inside one transaction, on every
// mutation. There is no cross-collection referential integrity; stale
// references resolve to defaults on lookup rather than erroring.
//
// The audit log and message log are bounded FIFO rings of MaxLogEntries
// entries. Appends and evictions happen atomically under the store's single
// writer mutex, so eviction order is deterministic even under concurrent
// appends.
//
// Use Open(":memory:", nil) for tests.
package store
