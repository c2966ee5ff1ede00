// Package dedupe tracks keys that are currently claimed, such as events
// with a training run queued or in progress.
package dedupe

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Deduper records claimed keys so work for a key runs at most once at a time.
type Deduper interface {
	// SeenAndRecord atomically checks whether id is claimed and claims it if
	// not. It returns true when id was already claimed.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases id once its work finished or could not be scheduled.
	Unrecord(ctx context.Context, id string)

	// Size returns the number of claimed keys.
	Size() int64
}

// InMemoryDeduper implements Deduper with a mutex-guarded map.
type InMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewInMemoryDeduper creates an empty deduper.
func NewInMemoryDeduper() *InMemoryDeduper {
	return &InMemoryDeduper{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// SeenAndRecord implements Deduper.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = d.now()
	return false
}

// Unrecord implements Deduper. Releasing an unknown id is a no-op.
func (d *InMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Size implements Deduper.
func (d *InMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// Claims returns claimed keys with their claim time, ordered by key.
func (d *InMemoryDeduper) Claims() []Claim {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Claim, 0, len(d.seen))
	for id, at := range d.seen {
		out = append(out, Claim{ID: id, Since: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Claim is one claimed key.
type Claim struct {
	ID    string
	Since time.Time
}
