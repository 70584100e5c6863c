// Package manager implements the multi-corpus StorageManager of spec.md
// §5: a process-wide cache of *loader.Loader keyed by corpus name, with
// synchronous eviction, a background writer, and the admin operations
// (import, export, delete). RequireAdmin checks a token against AuthConfig;
// the admin methods do not call it themselves.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/corpusgraph/corpusdb/pkg/config"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/loader"
	"github.com/corpusgraph/corpusdb/pkg/snapshot"
	"github.com/dustin/go-humanize"
)

// ErrCorpusNotFound is returned when a named corpus has no directory under
// the manager's data root.
var ErrCorpusNotFound = errors.New("manager: corpus not found")

// Manager owns the process-wide corpus cache (spec §5: "a cache mutex
// guards the map of loaders; a loader's own lock guards its corpus.
// Acquisition order is always cache mutex, then loader lock, never the
// reverse" -- every method below drops the cache mutex before touching a
// loader's lock).
type Manager struct {
	cfg *config.Config

	cacheMu sync.Mutex
	loaders map[string]*loader.Loader

	tick int64 // logical clock for LastLoadedAt, bumped on every load

	pages *PageCache

	// writerMu guards writers, the map of in-flight per-corpus background
	// writers (spec §5: "the writer-threads map has its own mutex").
	writerMu sync.Mutex
	writers  map[string]*writerHandle
}

// New returns a Manager rooted at cfg.Storage.DataDir.
func New(cfg *config.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		loaders: make(map[string]*loader.Loader),
		writers: make(map[string]*writerHandle),
	}
}

// WithPageCache attaches a badger-backed PageCache so Info can survive a
// restart without reloading every corpus just to report a size estimate.
func (m *Manager) WithPageCache(p *PageCache) *Manager {
	m.pages = p
	return m
}

func (m *Manager) corpusDir(name string) string {
	return filepath.Join(m.cfg.Storage.DataDir, name)
}

// loaderFor returns the loader for name, creating an unloaded one on first
// reference (spec §5: "a cache miss creates a NOT_IN_CACHE loader entry,
// it does not load the corpus").
func (m *Manager) loaderFor(name string) *loader.Loader {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	l, ok := m.loaders[name]
	if !ok {
		l = loader.New(name, m.corpusDir(name))
		m.loaders[name] = l
	}
	return l
}

// List returns every corpus name known to the manager: both already-cached
// loaders and directories on disk that have not been touched yet.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Storage.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manager: list: %w", err)
	}
	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		names = append(names, e.Name())
		seen[e.Name()] = struct{}{}
	}

	m.cacheMu.Lock()
	for name := range m.loaders {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	m.cacheMu.Unlock()

	sort.Strings(names)
	return names, nil
}

// withCorpus loads (if needed) the named corpus and runs fn against it
// under a shared lock, matching spec §5's read-path contract. Spec §4.6:
// "Every time a corpus finishes a load, a callback runs" that triggers
// eviction -- that callback fires here whenever this call is the one that
// transitioned the loader out of NOT_IN_CACHE.
func (m *Manager) withCorpus(name string, fn func(*corpus.Corpus) error) error {
	l := m.loaderFor(name)
	wasUnloaded := l.Status() != loader.StatusLoaded
	c, err := l.Corpus()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorpusNotFound, name, err)
	}
	if wasUnloaded {
		tick := atomic.AddInt64(&m.tick, 1)
		l.Lock()
		l.SetLastLoadedAt(tick)
		l.Unlock()
	}
	_ = m.pages.RecordSize(name, l.EstimateMemory())

	if wasUnloaded {
		m.Evict()
	}

	l.RLock()
	defer l.RUnlock()
	return fn(c)
}

// Find runs fn with shared access to the named corpus (spec §5 "find",
// "subgraph", "subcorpusGraph" all share this read-only shape).
func (m *Manager) Find(name string, fn func(*corpus.Corpus) error) error {
	return m.withCorpus(name, fn)
}

// Count returns the number of interned node paths in the named corpus.
func (m *Manager) Count(name string) (int, error) {
	var n int
	err := m.withCorpus(name, func(c *corpus.Corpus) error {
		n = len(c.AllNodeIDs())
		return nil
	})
	return n, err
}

// ApplyUpdate performs spec §4.5's five-step sequence for one corpus: (1)
// cancel and join any background writer already in flight for name, (2)
// take the corpus's exclusive lock and ensure every component is loaded,
// (3) apply gu, (4) append it to the write-ahead update log, fsynced
// before the lock is released, then (5) schedule a fresh background
// writer to persist a new snapshot asynchronously.
func (m *Manager) ApplyUpdate(name string, gu corpus.GraphUpdate) error {
	l := m.loaderFor(name)
	c, err := l.Corpus()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorpusNotFound, name, err)
	}

	m.cancelWriter(name)

	l.Lock()
	if err := c.EnsureAllComponentsLoaded(); err != nil {
		l.Unlock()
		return fmt.Errorf("manager: apply update: %w", err)
	}
	c.Update(gu)
	logErr := snapshot.WriteUpdateLog(l.Dir(), gu)
	l.Unlock()
	if logErr != nil {
		return fmt.Errorf("manager: apply update: %w", logErr)
	}

	m.scheduleWriter(name)
	return nil
}

// Info is the snapshot of one corpus's runtime state (spec §5's "info"
// operation).
type Info struct {
	Name          string
	LoadStatus    loader.Status
	EstimatedSize int64
	HumanSize     string
}

// Info reports the named corpus's current load status and estimated
// memory footprint without forcing a load.
func (m *Manager) Info(name string) Info {
	l := m.loaderFor(name)
	size := l.EstimateMemory()
	if size == 0 && l.Status() == loader.StatusNotInCache {
		if cached, ok := m.pages.LastKnownSize(name); ok {
			size = cached
		}
	}
	return Info{
		Name:          name,
		LoadStatus:    l.Status(),
		EstimatedSize: size,
		HumanSize:     humanize.Bytes(uint64(size)),
	}
}

// ImportCorpus creates name from scratch by applying gu, persisting
// immediately (spec §5 "importCorpus", gated by AuthConfig at the caller).
func (m *Manager) ImportCorpus(name string, gu corpus.GraphUpdate) error {
	dir := m.corpusDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manager: import %s: %w", name, err)
	}
	c := corpus.New()
	c.Update(gu)
	if err := snapshot.Save(c, dir); err != nil {
		return fmt.Errorf("manager: import %s: %w", name, err)
	}

	l := loader.New(name, dir)
	m.cacheMu.Lock()
	m.loaders[name] = l
	m.cacheMu.Unlock()
	return nil
}

// ExportCorpus forces every lazy component of name to load, then returns
// its Corpus for the caller to read wholesale (e.g. a relANNIS exporter).
func (m *Manager) ExportCorpus(name string) (*corpus.Corpus, error) {
	l := m.loaderFor(name)
	c, err := l.Corpus()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorpusNotFound, name, err)
	}
	l.Lock()
	defer l.Unlock()
	if err := c.EnsureAllComponentsLoaded(); err != nil {
		return nil, fmt.Errorf("manager: export %s: %w", name, err)
	}
	return c, nil
}

// DeleteCorpus removes name from the cache and from disk (spec §5
// "deleteCorpus", gated by AuthConfig at the caller). It blocks until it
// can take the loader's exclusive lock, so a delete never races an
// in-flight query.
func (m *Manager) DeleteCorpus(name string) error {
	m.cacheMu.Lock()
	l, ok := m.loaders[name]
	delete(m.loaders, name)
	m.cacheMu.Unlock()
	if ok {
		l.Lock()
		l.Unload()
		l.Unlock()
	}
	if err := os.RemoveAll(m.corpusDir(name)); err != nil {
		return fmt.Errorf("manager: delete %s: %w", name, err)
	}
	return nil
}

// SaveAll persists every currently-loaded corpus (used by shutdown), first
// cancelling and joining each corpus's in-flight background writer so it
// does not race the shutdown save.
func (m *Manager) SaveAll() error {
	m.cacheMu.Lock()
	loaders := make([]*loader.Loader, 0, len(m.loaders))
	for _, l := range m.loaders {
		loaders = append(loaders, l)
	}
	m.cacheMu.Unlock()

	var firstErr error
	for _, l := range loaders {
		m.cancelWriter(l.Name())
		l.Lock()
		if l.Status() == loader.StatusLoaded {
			if err := saveWithRotation(context.Background(), l); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		l.Unlock()
	}
	return firstErr
}
