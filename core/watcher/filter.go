// Package watcher implements the External Watcher capability shared by all
// four supported chains (spec.md §4.3), plus the Internal Watcher
// (spec.md §4.4). Grounded on the teacher's core/connection_pool.go for the
// RPC-URL rotation pattern and core/network.go for the single-writer,
// many-reader snapshot idiom already used there for peer sets.
package watcher

import "sync/atomic"

// AddressFilter is a write-one-read-all snapshot of the set of addresses a
// watcher currently cares about. The Party Watcher Driver is the single
// writer (on each tick); every chain watcher goroutine is a concurrent
// reader. Readers get an O(1) consistent snapshot with no locking.
type AddressFilter struct {
	snapshot atomic.Pointer[map[string]struct{}]
}

// NewAddressFilter constructs an empty filter.
func NewAddressFilter() *AddressFilter {
	f := &AddressFilter{}
	empty := make(map[string]struct{})
	f.snapshot.Store(&empty)
	return f
}

// Replace atomically swaps in a new watched-address set.
func (f *AddressFilter) Replace(addresses []string) {
	next := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		next[a] = struct{}{}
	}
	f.snapshot.Store(&next)
}

// Contains reports whether addr is in the current snapshot. Safe to call
// concurrently with Replace; a caller observes either the old or the new
// snapshot in its entirety, never a partial update.
func (f *AddressFilter) Contains(addr string) bool {
	snap := *f.snapshot.Load()
	_, ok := snap[addr]
	return ok
}

// Len returns the size of the current snapshot.
func (f *AddressFilter) Len() int {
	return len(*f.snapshot.Load())
}
