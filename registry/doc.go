// Package registry holds the set of currently connected relay clients.
//
// Entries are keyed by an internal slot number and indexed by connection id.
// The registry is append/remove only: an entry is never mutated after
// insertion, and Remove tolerates duplicate close notifications.
package registry
