package graphstorage

import (
	"sort"
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// DenseAdjacencyStorage is a compacted variant of AdjacencyListStorage for
// components with small, roughly uniform fan-out (spec §4.3): successor
// and predecessor sets are kept as sorted slices instead of map[.]struct{},
// trading O(log n) membership/insert for a much smaller per-edge memory
// footprint than a hash-map-of-sets.
type DenseAdjacencyStorage struct {
	mu sync.RWMutex

	outgoing map[NodeID][]NodeID
	incoming map[NodeID][]NodeID
	annos    map[Edge]map[annostore.Key]strpool.ID

	stats      Stats
	statsValid bool
}

// NewDenseAdjacencyStorage returns an empty dense-adjacency storage.
func NewDenseAdjacencyStorage() *DenseAdjacencyStorage {
	return &DenseAdjacencyStorage{
		outgoing: make(map[NodeID][]NodeID),
		incoming: make(map[NodeID][]NodeID),
		annos:    make(map[Edge]map[annostore.Key]strpool.ID),
	}
}

func insertSorted(s []NodeID, v NodeID) []NodeID {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []NodeID, v NodeID) []NodeID {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return append(s[:i], s[i+1:]...)
	}
	return s
}

func containsSorted(s []NodeID, v NodeID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	return i < len(s) && s[i] == v
}

// AddEdge inserts edge into the sorted successor/predecessor slices.
func (d *DenseAdjacencyStorage) AddEdge(e Edge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outgoing[e.Source] = insertSorted(d.outgoing[e.Source], e.Target)
	d.incoming[e.Target] = insertSorted(d.incoming[e.Target], e.Source)
	d.statsValid = false
	return nil
}

// AddEdgeAnnotation upserts an annotation, implicitly adding the edge.
func (d *DenseAdjacencyStorage) AddEdgeAnnotation(e Edge, anno Annotation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !containsSorted(d.outgoing[e.Source], e.Target) {
		d.outgoing[e.Source] = insertSorted(d.outgoing[e.Source], e.Target)
		d.incoming[e.Target] = insertSorted(d.incoming[e.Target], e.Source)
	}
	if d.annos[e] == nil {
		d.annos[e] = make(map[annostore.Key]strpool.ID)
	}
	d.annos[e][anno.Key] = anno.Value
	d.statsValid = false
	return nil
}

// DeleteEdge removes edge and its annotations.
func (d *DenseAdjacencyStorage) DeleteEdge(e Edge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outgoing[e.Source] = removeSorted(d.outgoing[e.Source], e.Target)
	if len(d.outgoing[e.Source]) == 0 {
		delete(d.outgoing, e.Source)
	}
	d.incoming[e.Target] = removeSorted(d.incoming[e.Target], e.Source)
	if len(d.incoming[e.Target]) == 0 {
		delete(d.incoming, e.Target)
	}
	delete(d.annos, e)
	d.statsValid = false
	return nil
}

// DeleteNode removes node as both source and target of every edge.
func (d *DenseAdjacencyStorage) DeleteNode(node NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, target := range d.outgoing[node] {
		d.incoming[target] = removeSorted(d.incoming[target], node)
		if len(d.incoming[target]) == 0 {
			delete(d.incoming, target)
		}
		delete(d.annos, Edge{Source: node, Target: target})
	}
	delete(d.outgoing, node)

	for _, source := range d.incoming[node] {
		d.outgoing[source] = removeSorted(d.outgoing[source], node)
		if len(d.outgoing[source]) == 0 {
			delete(d.outgoing, source)
		}
		delete(d.annos, Edge{Source: source, Target: node})
	}
	delete(d.incoming, node)

	d.statsValid = false
	return nil
}

// Outgoing returns node's direct successors.
func (d *DenseAdjacencyStorage) Outgoing(node NodeID) []NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NodeID, len(d.outgoing[node]))
	copy(out, d.outgoing[node])
	return out
}

// Incoming returns node's direct predecessors.
func (d *DenseAdjacencyStorage) Incoming(node NodeID) []NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NodeID, len(d.incoming[node]))
	copy(out, d.incoming[node])
	return out
}

// IsConnected reports whether target is reachable within [min,max] hops.
func (d *DenseAdjacencyStorage) IsConnected(e Edge, min, max uint32) bool {
	for _, n := range d.FindConnected(e.Source, min, max) {
		if n == e.Target {
			return true
		}
	}
	return false
}

// Distance returns the shortest hop count, or -1 if unreachable.
func (d *DenseAdjacencyStorage) Distance(e Edge) int64 {
	return distanceByWalk(d.outgoingFunc(), e.Source, e.Target)
}

// FindConnected returns every node reachable from source within
// [min,max] hops, cycle-safe and duplicate-free.
func (d *DenseAdjacencyStorage) FindConnected(source NodeID, min, max uint32) []NodeID {
	return CollectReachable(d.outgoingFunc(), source, min, max)
}

func (d *DenseAdjacencyStorage) outgoingFunc() OutgoingFunc {
	return func(node NodeID) []NodeID { return d.Outgoing(node) }
}

// EdgeAnnotations returns the annotation set for edge.
func (d *DenseAdjacencyStorage) EdgeAnnotations(e Edge) []Annotation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := d.annos[e]
	out := make([]Annotation, 0, len(m))
	for k, v := range m {
		out = append(out, Annotation{Key: k, Value: v})
	}
	return out
}

// SourceNodes returns every node that is the source of an edge matching
// the optional annotation filter.
func (d *DenseAdjacencyStorage) SourceNodes(key *annostore.Key, value *strpool.ID) []NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[NodeID]struct{})
	for e, annos := range d.annos {
		if key == nil {
			seen[e.Source] = struct{}{}
			continue
		}
		v, ok := annos[*key]
		if !ok {
			continue
		}
		if value != nil && v != *value {
			continue
		}
		seen[e.Source] = struct{}{}
	}
	return setKeys(seen)
}

// Statistics returns the last computed Stats.
func (d *DenseAdjacencyStorage) Statistics() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.stats
	s.Valid = d.statsValid
	return s
}

// CalculateStatistics recomputes Stats from the current edge set.
func (d *DenseAdjacencyStorage) CalculateStatistics() {
	d.mu.Lock()
	nodes := make(map[NodeID]struct{})
	for src, targets := range d.outgoing {
		nodes[src] = struct{}{}
		for _, t := range targets {
			nodes[t] = struct{}{}
		}
	}
	for src := range d.incoming {
		nodes[src] = struct{}{}
	}
	nodeList := setKeys(nodes)
	outSnap := make(map[NodeID][]NodeID, len(d.outgoing))
	for k, v := range d.outgoing {
		cp := make([]NodeID, len(v))
		copy(cp, v)
		outSnap[k] = cp
	}
	inSnap := make(map[NodeID][]NodeID, len(d.incoming))
	for k, v := range d.incoming {
		cp := make([]NodeID, len(v))
		copy(cp, v)
		inSnap[k] = cp
	}
	d.mu.Unlock()

	stats := ComputeStats(nodeList,
		func(n NodeID) []NodeID { return outSnap[n] },
		func(n NodeID) []NodeID { return inSnap[n] },
	)

	d.mu.Lock()
	d.stats = stats
	d.statsValid = true
	d.mu.Unlock()
}
