package graphstorage

import (
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// AdjacencyListStorage is the default writable edge-component storage
// (spec §4.3): outgoing and incoming multimaps, correct for any graph
// shape (including cycles) but the slowest for deep reachability since
// FindConnected always runs a DFS.
type AdjacencyListStorage struct {
	mu sync.RWMutex

	outgoing map[NodeID]map[NodeID]struct{}
	incoming map[NodeID]map[NodeID]struct{}
	annos    map[Edge]map[annostore.Key]strpool.ID

	stats      Stats
	statsValid bool
}

// NewAdjacencyListStorage returns an empty adjacency-list storage.
func NewAdjacencyListStorage() *AdjacencyListStorage {
	return &AdjacencyListStorage{
		outgoing: make(map[NodeID]map[NodeID]struct{}),
		incoming: make(map[NodeID]map[NodeID]struct{}),
		annos:    make(map[Edge]map[annostore.Key]strpool.ID),
	}
}

func (a *AdjacencyListStorage) edgeExistsLocked(e Edge) bool {
	targets, ok := a.outgoing[e.Source]
	if !ok {
		return false
	}
	_, ok = targets[e.Target]
	return ok
}

// AddEdge inserts edge (spec invariant: if edge not in storage, no
// annotations exist for it; this restores the precondition for
// AddEdgeAnnotation).
func (a *AdjacencyListStorage) AddEdge(e Edge) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outgoing[e.Source] == nil {
		a.outgoing[e.Source] = make(map[NodeID]struct{})
	}
	a.outgoing[e.Source][e.Target] = struct{}{}
	if a.incoming[e.Target] == nil {
		a.incoming[e.Target] = make(map[NodeID]struct{})
	}
	a.incoming[e.Target][e.Source] = struct{}{}
	a.statsValid = false
	return nil
}

// AddEdgeAnnotation upserts an annotation on edge; adding an annotation
// implies the edge must already exist (spec §4.3 invariant) -- if it does
// not, the edge is added as a side effect to keep the invariant intact.
func (a *AdjacencyListStorage) AddEdgeAnnotation(e Edge, anno Annotation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.edgeExistsLocked(e) {
		if a.outgoing[e.Source] == nil {
			a.outgoing[e.Source] = make(map[NodeID]struct{})
		}
		a.outgoing[e.Source][e.Target] = struct{}{}
		if a.incoming[e.Target] == nil {
			a.incoming[e.Target] = make(map[NodeID]struct{})
		}
		a.incoming[e.Target][e.Source] = struct{}{}
	}
	if a.annos[e] == nil {
		a.annos[e] = make(map[annostore.Key]strpool.ID)
	}
	a.annos[e][anno.Key] = anno.Value
	a.statsValid = false
	return nil
}

// DeleteEdge removes edge and its annotations.
func (a *AdjacencyListStorage) DeleteEdge(e Edge) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if targets, ok := a.outgoing[e.Source]; ok {
		delete(targets, e.Target)
		if len(targets) == 0 {
			delete(a.outgoing, e.Source)
		}
	}
	if sources, ok := a.incoming[e.Target]; ok {
		delete(sources, e.Source)
		if len(sources) == 0 {
			delete(a.incoming, e.Target)
		}
	}
	delete(a.annos, e)
	a.statsValid = false
	return nil
}

// DeleteNode removes node as both source and target of every edge.
func (a *AdjacencyListStorage) DeleteNode(node NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for target := range a.outgoing[node] {
		if sources, ok := a.incoming[target]; ok {
			delete(sources, node)
			if len(sources) == 0 {
				delete(a.incoming, target)
			}
		}
		delete(a.annos, Edge{Source: node, Target: target})
	}
	delete(a.outgoing, node)

	for source := range a.incoming[node] {
		if targets, ok := a.outgoing[source]; ok {
			delete(targets, node)
			if len(targets) == 0 {
				delete(a.outgoing, source)
			}
		}
		delete(a.annos, Edge{Source: source, Target: node})
	}
	delete(a.incoming, node)

	a.statsValid = false
	return nil
}

// Outgoing returns node's direct successors.
func (a *AdjacencyListStorage) Outgoing(node NodeID) []NodeID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return setKeys(a.outgoing[node])
}

// Incoming returns node's direct predecessors.
func (a *AdjacencyListStorage) Incoming(node NodeID) []NodeID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return setKeys(a.incoming[node])
}

func setKeys(m map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// IsConnected reports whether target is reachable from source in
// [min,max] hops.
func (a *AdjacencyListStorage) IsConnected(e Edge, min, max uint32) bool {
	for _, n := range a.FindConnected(e.Source, min, max) {
		if n == e.Target {
			return true
		}
	}
	return false
}

// Distance returns the shortest hop count from edge.Source to
// edge.Target, or -1 if unreachable.
func (a *AdjacencyListStorage) Distance(e Edge) int64 {
	a.mu.RLock()
	outgoing := a.outgoingFunc()
	a.mu.RUnlock()

	if e.Source == e.Target {
		return 0
	}
	visited := map[NodeID]struct{}{e.Source: {}}
	queue := []NodeID{e.Source}
	dist := map[NodeID]int64{e.Source: 0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range outgoing(cur) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			dist[next] = dist[cur] + 1
			if next == e.Target {
				return dist[next]
			}
			queue = append(queue, next)
		}
	}
	return -1
}

// FindConnected returns every node reachable from source within
// [min,max] hops, cycle-safe and duplicate-free.
func (a *AdjacencyListStorage) FindConnected(source NodeID, min, max uint32) []NodeID {
	return CollectReachable(a.outgoingFunc(), source, min, max)
}

// outgoingFunc returns an OutgoingFunc that reads the live adjacency map
// under the read lock on each call.
func (a *AdjacencyListStorage) outgoingFunc() OutgoingFunc {
	return func(node NodeID) []NodeID {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return setKeys(a.outgoing[node])
	}
}

// EdgeAnnotations returns the annotation set for edge.
func (a *AdjacencyListStorage) EdgeAnnotations(e Edge) []Annotation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m := a.annos[e]
	out := make([]Annotation, 0, len(m))
	for k, v := range m {
		out = append(out, Annotation{Key: k, Value: v})
	}
	return out
}

// SourceNodes returns every node that is the source of an edge whose
// annotation set matches the optional key/value filter.
func (a *AdjacencyListStorage) SourceNodes(key *annostore.Key, value *strpool.ID) []NodeID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[NodeID]struct{})
	for e, annos := range a.annos {
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
func (a *AdjacencyListStorage) Statistics() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.stats
	s.Valid = a.statsValid
	return s
}

// CalculateStatistics recomputes Stats from the current edge set.
func (a *AdjacencyListStorage) CalculateStatistics() {
	a.mu.Lock()
	nodes := make(map[NodeID]struct{})
	for src, targets := range a.outgoing {
		nodes[src] = struct{}{}
		for t := range targets {
			nodes[t] = struct{}{}
		}
	}
	for src := range a.incoming {
		nodes[src] = struct{}{}
	}
	nodeList := setKeys(nodes)
	outFn := a.outgoingFuncLocked()
	inFn := a.incomingFuncLocked()
	a.mu.Unlock()

	stats := ComputeStats(nodeList, outFn, inFn)

	a.mu.Lock()
	a.stats = stats
	a.statsValid = true
	a.mu.Unlock()
}

func (a *AdjacencyListStorage) outgoingFuncLocked() OutgoingFunc {
	snapshot := make(map[NodeID][]NodeID, len(a.outgoing))
	for k, v := range a.outgoing {
		snapshot[k] = setKeys(v)
	}
	return func(node NodeID) []NodeID { return snapshot[node] }
}

func (a *AdjacencyListStorage) incomingFuncLocked() OutgoingFunc {
	snapshot := make(map[NodeID][]NodeID, len(a.incoming))
	for k, v := range a.incoming {
		snapshot[k] = setKeys(v)
	}
	return func(node NodeID) []NodeID { return snapshot[node] }
}
