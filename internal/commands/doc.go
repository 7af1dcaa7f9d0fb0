// Package commands owns the slash command set and its synchronization with
// the platform's remote registry.
//
// The local set is authoritative: built-ins (immutable, hard-coded) plus
// custom commands stored per scope. Synchronization pushes full-replacement
// batches: the global batch first, then one batch per guild. Commands not
// present locally are implicitly deregistered by the replace-all push. A
// failure in one guild's push never aborts the others.
//
// Every custom command mutation re-runs synchronization synchronously
// before reporting success, so the dashboard never sees "saved" while the
// remote registry is stale.
package commands
