// Package corpus implements the corpus graph (DB) of spec.md §4.4: one
// string pool, one annotation store, and a GraphStorageHolder mapping
// Component to either a loaded edge-component storage or a pending
// (not-yet-loaded) on-disk location.
package corpus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// Sentinel errors, wrapped with fmt.Errorf("...: %w", err) at call sites
// and matched with errors.Is, following the teacher's pkg/storage pattern.
var (
	ErrNodeNotFound     = errors.New("corpus: node not found")
	ErrNodeExists       = errors.New("corpus: node already exists")
	ErrComponentPending = errors.New("corpus: component not loaded")
)

// annis namespace/name used for the reserved node-identity annotation
// (spec §3: "a reserved annotation annis::node_name exists for every live
// node").
const (
	annisNs       = "annis"
	nodeNameLabel = "node_name"
	tokLabel      = "tok"
)

// pendingLoader loads one component's storage from disk on demand; it is
// supplied by pkg/snapshot so pkg/corpus does not import the on-disk format
// directly (kept as a decoupled dependency the way the loader abstracts
// load descriptors in spec §4.4/§9).
type pendingLoader func(c component.Component) (graphstorage.WritableGraphStorage, error)

// Corpus is the in-memory graph database for one corpus (spec §4.4).
type Corpus struct {
	mu sync.RWMutex

	Pool  *strpool.Pool
	Annos *annostore.Store

	components map[component.Component]graphstorage.WritableGraphStorage
	pending    map[component.Component]pendingLoader

	pathToNode map[string]annostore.NodeID
	nodeToPath map[annostore.NodeID]string
	nextNodeID annostore.NodeID

	nodeNameKey annostore.Key
}

// New returns an empty corpus.
func New() *Corpus {
	pool := strpool.New()
	c := &Corpus{
		Pool:       pool,
		Annos:      annostore.New(),
		components: make(map[component.Component]graphstorage.WritableGraphStorage),
		pending:    make(map[component.Component]pendingLoader),
		pathToNode: make(map[string]annostore.NodeID),
		nodeToPath: make(map[annostore.NodeID]string),
		nextNodeID: 1,
	}
	c.nodeNameKey = annostore.Key{Ns: pool.Intern(annisNs), Name: pool.Intern(nodeNameLabel)}
	return c
}

// RegisterPending marks c as not-yet-loaded, to be resolved by load when
// first touched (spec §4.4 "not yet loaded map Component -> directory").
func (c *Corpus) RegisterPending(comp component.Component, load pendingLoader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.components[comp]; ok {
		return
	}
	c.pending[comp] = load
}

// RegisterLoaded installs an already-loaded storage for comp.
func (c *Corpus) RegisterLoaded(comp component.Component, storage graphstorage.WritableGraphStorage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, comp)
	c.components[comp] = storage
}

// Components returns every currently loaded component key (not pending).
func (c *Corpus) Components() []component.Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]component.Component, 0, len(c.components))
	for k := range c.components {
		out = append(out, k)
	}
	return out
}

// Storage returns comp's storage, lazily resolving it if pending. This is
// the "drop shared lock, reacquire exclusive, re-check" upgrade pattern
// from spec §9 since Go's sync.RWMutex has no atomic upgrade primitive.
func (c *Corpus) Storage(comp component.Component) (graphstorage.WritableGraphStorage, error) {
	c.mu.RLock()
	if s, ok := c.components[comp]; ok {
		c.mu.RUnlock()
		return s, nil
	}
	_, isPending := c.pending[comp]
	c.mu.RUnlock()
	if !isPending {
		return nil, fmt.Errorf("%w: %s", ErrComponentPending, comp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.components[comp]; ok {
		return s, nil
	}
	loader, ok := c.pending[comp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrComponentPending, comp)
	}
	storage, err := loader(comp)
	if err != nil {
		return nil, fmt.Errorf("corpus: loading component %s: %w", comp, err)
	}
	delete(c.pending, comp)
	c.components[comp] = storage
	return storage, nil
}

// EnsureAllComponentsLoaded force-loads every pending component (spec §4.4).
func (c *Corpus) EnsureAllComponentsLoaded() error {
	c.mu.RLock()
	pendingKeys := make([]component.Component, 0, len(c.pending))
	for k := range c.pending {
		pendingKeys = append(pendingKeys, k)
	}
	c.mu.RUnlock()

	for _, comp := range pendingKeys {
		if _, err := c.Storage(comp); err != nil {
			return err
		}
	}
	return nil
}

// StorageOrCreate returns comp's storage, creating a fresh writable
// storage of the registry's recommended kind if comp has never been seen.
func (c *Corpus) StorageOrCreate(comp component.Component) (graphstorage.WritableGraphStorage, error) {
	if s, err := c.Storage(comp); err == nil {
		return s, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.components[comp]; ok {
		return s, nil
	}
	s := graphstorage.New(graphstorage.PickImplementation(comp))
	c.components[comp] = s
	return s, nil
}

// NodeByPath returns the NodeID assigned to path, if any.
func (c *Corpus) NodeByPath(path string) (annostore.NodeID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.pathToNode[path]
	return id, ok
}

// PathOf returns the identity path of node, if it is live.
func (c *Corpus) PathOf(node annostore.NodeID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.nodeToPath[node]
	return p, ok
}

// IsToken reports whether node carries annis::tok and has no outgoing
// Coverage edge (spec §4.8 token helper).
func (c *Corpus) IsToken(node annostore.NodeID, coverageComponents []component.Component) bool {
	tokKey := annostore.Key{Ns: c.Pool.Intern(annisNs), Name: c.Pool.Intern(tokLabel)}
	if _, ok := c.Annos.Get(node, tokKey); !ok {
		return false
	}
	for _, comp := range coverageComponents {
		s, err := c.Storage(comp)
		if err != nil {
			continue
		}
		if len(s.Outgoing(node)) > 0 {
			return false
		}
	}
	return true
}

// AllNodeIDs returns every live node's ID, in no particular order. Used by
// pkg/snapshot to enumerate candidate edge sources per component, since
// the storage read interface has no edge enumeration of its own, and as
// the corpus node count by the manager's Count and by EdgeOperator's
// Selectivity.
func (c *Corpus) AllNodeIDs() []annostore.NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]annostore.NodeID, 0, len(c.nodeToPath))
	for n := range c.nodeToPath {
		out = append(out, n)
	}
	return out
}

// PathEntry pairs a node with its identity path, for persistence.
type PathEntry struct {
	Node annostore.NodeID
	Path string
}

// DumpPaths returns every live node's identity path.
func (c *Corpus) DumpPaths() []PathEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PathEntry, 0, len(c.nodeToPath))
	for n, p := range c.nodeToPath {
		out = append(out, PathEntry{Node: n, Path: p})
	}
	return out
}

// RestorePaths repopulates the path index from a prior DumpPaths, and
// advances nextNodeID past the highest node seen. Only meaningful on a
// freshly constructed, empty corpus.
func (c *Corpus) RestorePaths(entries []PathEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.pathToNode[e.Path] = e.Node
		c.nodeToPath[e.Node] = e.Path
		if e.Node >= c.nextNodeID {
			c.nextNodeID = e.Node + 1
		}
	}
}

// EstimateMemory returns a rough byte estimate of everything currently
// resident in memory: interned strings, annotation entries, and, for each
// loaded (not pending) component whose statistics are valid, an edge
// estimate of node count times whole-number average fan-out; components
// without valid statistics add nothing. This is heuristic (spec
// §9 "selectivity estimates are heuristic"); it is used by the manager's
// eviction policy, not for an exact accounting.
func (c *Corpus) EstimateMemory() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	const bytesPerInternedString = 48
	const bytesPerAnnotation = 24
	const bytesPerEdge = 40

	var total int64
	total += int64(c.Pool.Size()) * bytesPerInternedString
	total += c.Annos.NodeCount() * bytesPerAnnotation * 2 // rough: node + secondary index

	for _, s := range c.components {
		stats := s.Statistics()
		if stats.Valid {
			total += stats.Nodes * int64(stats.AvgFanOut) * bytesPerEdge
		}
	}
	return total
}
