package manager

import (
	"context"
	"sort"
	"time"

	"github.com/corpusgraph/corpusdb/pkg/loader"
)

// evictionCandidate pairs a loader with its estimated size. Evict reads
// status, size and load tick through the loader's shared-lock accessors,
// which wait for a corpus that is mid-write; only the exclusive lock taken
// to unload a candidate is tried without blocking.
type evictionCandidate struct {
	name string
	l    *loader.Loader
	size int64
}

// Evict unloads the largest currently-loaded corpora until the cache's
// total estimated size is at or under the configured budget, skipping the
// most-recently-loaded corpus and any corpus it cannot immediately
// exclusively lock (spec §4.6).
func (m *Manager) Evict() (freed int64, evicted []string) {
	budget := m.cfg.Cache.MaxAllowedCacheSize

	m.cacheMu.Lock()
	loaders := make([]*loader.Loader, 0, len(m.loaders))
	for _, l := range m.loaders {
		loaders = append(loaders, l)
	}
	m.cacheMu.Unlock()

	var mostRecent *loader.Loader
	var mostRecentTick int64 = -1
	var total int64
	var candidates []evictionCandidate
	for _, l := range loaders {
		if l.Status() != loader.StatusLoaded {
			continue
		}
		size := l.EstimateMemory()
		total += size
		if tick := l.LastLoadedAt(); tick > mostRecentTick {
			mostRecentTick = tick
			mostRecent = l
		}
		candidates = append(candidates, evictionCandidate{name: l.Name(), l: l, size: size})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })

	for _, c := range candidates {
		if total <= budget {
			break
		}
		if c.l == mostRecent {
			continue // exempt the most-recently-loaded corpus (spec §4.6)
		}
		if !c.l.TryLock() {
			continue // in use; skip rather than block
		}
		size := c.size
		c.l.Unload()
		c.l.Unlock()

		total -= size
		freed += size
		evicted = append(evicted, c.name)
	}
	return freed, evicted
}

// RunEvictionSweep periodically calls Evict until ctx is cancelled. The
// load-triggered callback in withCorpus (spec §4.6: "every time a corpus
// finishes a load, a callback runs") is what keeps the cache within budget
// under normal query traffic; this sweep is a backstop for a long-lived
// process where the cache could otherwise drift over budget between loads
// (e.g. growth from in-place updates rather than fresh loads).
func (m *Manager) RunEvictionSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}
