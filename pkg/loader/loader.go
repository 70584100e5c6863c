// Package loader implements the per-corpus DB loader of spec.md §4.4/§9: a
// reader-writer lock wrapping a lazily-loaded *corpus.Corpus, tracking load
// status and exposing the "drop shared lock, reacquire exclusive, re-check"
// upgrade pattern Go's sync.RWMutex requires in place of an atomic upgrade
// primitive.
package loader

import (
	"fmt"
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/snapshot"
)

// Status mirrors the load-status values spec.md's scenario 1 names
// ("info.loadStatus = NOT_IN_CACHE").
type Status string

const (
	StatusNotInCache Status = "NOT_IN_CACHE"
	StatusLoading    Status = "LOADING"
	StatusLoaded     Status = "LOADED"
)

// Loader owns one corpus's lifecycle: its directory, its lock, and its
// in-memory Corpus once loaded. The zero value is not usable; use New.
type Loader struct {
	mu sync.RWMutex

	name   string
	dir    string
	status Status
	c      *corpus.Corpus

	lastLoadedAt int64 // logical tick, set by the manager when a Find or Count loads the corpus
}

// New returns a loader for corpus name backed by directory dir, initially
// unloaded (spec scenario 1: "loadStatus = NOT_IN_CACHE before first touch").
func New(name, dir string) *Loader {
	return &Loader{name: name, dir: dir, status: StatusNotInCache}
}

// Name returns the corpus name this loader owns.
func (l *Loader) Name() string { return l.name }

// Dir returns the on-disk directory this loader reads and writes.
func (l *Loader) Dir() string { return l.dir }

// Status returns the current load status under a shared lock.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Corpus returns the loaded corpus, loading it on first access. It holds
// the loader's lock only while checking (shared) and loading (exclusive);
// the lock is released on return, so callers wrap their own use of the
// corpus in RLock/RUnlock or Lock/Unlock.
func (l *Loader) Corpus() (*corpus.Corpus, error) {
	l.mu.RLock()
	if l.c != nil {
		c := l.c
		l.mu.RUnlock()
		return c, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c != nil {
		return l.c, nil
	}
	l.status = StatusLoading
	c, err := snapshot.Load(l.dir, false)
	if err != nil {
		l.status = StatusNotInCache
		return nil, fmt.Errorf("loader: %s: %w", l.name, err)
	}
	l.c = c
	l.status = StatusLoaded
	return c, nil
}

// RLock/RUnlock/Lock/Unlock expose the loader's own lock directly so the
// manager can implement "shared for queries, exclusive for updates/saves/
// eviction" (spec §5) without every caller reaching into an internal field.
func (l *Loader) RLock()   { l.mu.RLock() }
func (l *Loader) RUnlock() { l.mu.RUnlock() }
func (l *Loader) Lock()    { l.mu.Lock() }
func (l *Loader) Unlock()  { l.mu.Unlock() }

// TryLock attempts to acquire the exclusive lock without blocking,
// returning false if another goroutine already holds it (used by eviction
// to skip corpora that are currently write-locked, spec §4.6).
func (l *Loader) TryLock() bool {
	return l.mu.TryLock()
}

// TryRLock attempts to acquire the shared lock without blocking.
func (l *Loader) TryRLock() bool {
	return l.mu.TryRLock()
}

// EstimateMemory returns the loaded corpus's estimated memory footprint,
// or 0 if it is not currently resident.
func (l *Loader) EstimateMemory() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.c == nil {
		return 0
	}
	return l.c.EstimateMemory()
}

// Unload drops the in-memory corpus, returning it to NOT_IN_CACHE. Callers
// must hold the exclusive lock (spec §4.6 eviction: "subject to each
// candidate being exclusively lockable").
func (l *Loader) Unload() {
	l.c = nil
	l.status = StatusNotInCache
}

// LastLoadedAt returns the logical tick this loader was last (re)loaded, 0
// if never loaded. Used by the manager to exempt the most-recently-loaded
// corpus from the same eviction pass (spec §4.6).
func (l *Loader) LastLoadedAt() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastLoadedAt
}

// SetLastLoadedAt records tick as this loader's last-load tick. Callers
// must hold the exclusive lock.
func (l *Loader) SetLastLoadedAt(tick int64) {
	l.lastLoadedAt = tick
}

// Save persists the loaded corpus back to l.Dir via pkg/snapshot. Callers
// must hold the exclusive lock.
func (l *Loader) Save() error {
	if l.c == nil {
		return nil
	}
	return snapshot.Save(l.c, l.dir)
}
