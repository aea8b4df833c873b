package ingest

import (
	"sync"

	"github.com/matthutchison/cryoempipe/xact"
)

// Registry is the project-wide set of live Items, keyed by their
// original path. At most one Item per original path may be registered.
// Registered Items are mutated only from the scheduler's loop goroutine;
// the mutex here guards membership only (Lookup/Register/Remove), which
// the ingest loop and the stacking rendez-vous both call.
type Registry struct {
	mu    sync.Mutex
	items map[string]*Item
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Item)}
}

// Lookup returns the Item registered under original, if any.
func (r *Registry) Lookup(original string) (*Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[original]
	return it, ok
}

// Register adds item under its Original path.
func (r *Registry) Register(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.paths[Original]] = item
}

// Remove drops original from the registry, called once an Item reaches
// finished and its resources are released.
func (r *Registry) Remove(original string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, original)
}

// LookupOrCreateParent returns the existing parent Item for a derived
// stack key, or creates and registers one directly in xact.Stacking,
// bypassing xact.Initial - a parent has no source file to wait for.
// The second return value reports whether it was freshly created.
func (r *Registry) LookupOrCreateParent(key string, host Host) (*Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[key]; ok {
		return it, false
	}
	it := newParent(key, host, r)
	r.items[key] = it
	return it, true
}

// Snapshot returns the current count of registered Items per state, for
// periodic metrics reporting.
func (r *Registry) Snapshot() map[xact.State]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[xact.State]int)
	for _, it := range r.items {
		counts[it.State()]++
	}
	return counts
}
