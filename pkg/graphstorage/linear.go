package graphstorage

import (
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// LinearStorage backs Ordering-type components (spec §4.3): a total
// successor order per text. Once CalculateIndex has run, Distance and
// IsConnected are O(1) via a precomputed (chain, position) pair per node;
// before that they fall back to walking the next-pointer chain, bounded
// by a fixed step limit (walkBound).
type LinearStorage struct {
	mu sync.RWMutex

	next  map[NodeID]NodeID
	prev  map[NodeID]NodeID
	annos map[Edge]map[annostore.Key]strpool.ID

	indexValid bool
	chainOf    map[NodeID]int
	posInChain map[NodeID]int64
	chains     [][]NodeID

	stats      Stats
	statsValid bool
}

// NewLinearStorage returns an empty linear (ordering) storage.
func NewLinearStorage() *LinearStorage {
	return &LinearStorage{
		next:  make(map[NodeID]NodeID),
		prev:  make(map[NodeID]NodeID),
		annos: make(map[Edge]map[annostore.Key]strpool.ID),
	}
}

// AddEdge records source as the immediate predecessor of target.
func (l *LinearStorage) AddEdge(e Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next[e.Source] = e.Target
	l.prev[e.Target] = e.Source
	l.indexValid = false
	l.statsValid = false
	return nil
}

// AddEdgeAnnotation upserts an annotation on edge, implicitly adding the
// edge if it was absent.
func (l *LinearStorage) AddEdgeAnnotation(e Edge, anno Annotation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next[e.Source] != e.Target {
		l.next[e.Source] = e.Target
		l.prev[e.Target] = e.Source
		l.indexValid = false
	}
	if l.annos[e] == nil {
		l.annos[e] = make(map[annostore.Key]strpool.ID)
	}
	l.annos[e][anno.Key] = anno.Value
	l.statsValid = false
	return nil
}

// DeleteEdge unlinks source -> target, splitting the chain in two.
func (l *LinearStorage) DeleteEdge(e Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next[e.Source] == e.Target {
		delete(l.next, e.Source)
	}
	if l.prev[e.Target] == e.Source {
		delete(l.prev, e.Target)
	}
	delete(l.annos, e)
	l.indexValid = false
	l.statsValid = false
	return nil
}

// DeleteNode removes node as both predecessor and successor, without
// bridging its neighbors back together.
func (l *LinearStorage) DeleteNode(node NodeID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if target, ok := l.next[node]; ok {
		delete(l.prev, target)
		delete(l.annos, Edge{Source: node, Target: target})
		delete(l.next, node)
	}
	if source, ok := l.prev[node]; ok {
		delete(l.next, source)
		delete(l.annos, Edge{Source: source, Target: node})
		delete(l.prev, node)
	}
	l.indexValid = false
	l.statsValid = false
	return nil
}

// CalculateIndex rebuilds the (chain, position) lookup used for O(1)
// Distance/IsConnected once the chain structure has stabilized.
func (l *LinearStorage) CalculateIndex() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calculateIndexLocked()
}

func (l *LinearStorage) calculateIndexLocked() {
	nodes := make(map[NodeID]struct{})
	for n, t := range l.next {
		nodes[n] = struct{}{}
		nodes[t] = struct{}{}
	}
	roots := make([]NodeID, 0)
	for n := range nodes {
		if _, hasPrev := l.prev[n]; !hasPrev {
			roots = append(roots, n)
		}
	}

	chainOf := make(map[NodeID]int)
	posInChain := make(map[NodeID]int64)
	var chains [][]NodeID

	for _, root := range roots {
		chainIdx := len(chains)
		var chain []NodeID
		cur := root
		visited := map[NodeID]struct{}{}
		for {
			if _, seen := visited[cur]; seen {
				break // cyclic ordering; stop rather than loop forever
			}
			visited[cur] = struct{}{}
			chainOf[cur] = chainIdx
			posInChain[cur] = int64(len(chain))
			chain = append(chain, cur)
			next, ok := l.next[cur]
			if !ok {
				break
			}
			cur = next
		}
		chains = append(chains, chain)
	}

	l.chainOf = chainOf
	l.posInChain = posInChain
	l.chains = chains
	l.indexValid = true
}

// Outgoing returns node's single successor, if any.
func (l *LinearStorage) Outgoing(node NodeID) []NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if t, ok := l.next[node]; ok {
		return []NodeID{t}
	}
	return nil
}

// Incoming returns node's single predecessor, if any.
func (l *LinearStorage) Incoming(node NodeID) []NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.prev[node]; ok {
		return []NodeID{s}
	}
	return nil
}

// Distance returns the position difference between edge.Source and
// edge.Target within their shared chain, or -1 if they are not on the
// same chain (or the chain is unindexed and the walk bound is exceeded).
func (l *LinearStorage) Distance(e Edge) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e.Source == e.Target {
		return 0
	}
	if l.indexValid {
		cs, ok1 := l.chainOf[e.Source]
		ct, ok2 := l.chainOf[e.Target]
		if !ok1 || !ok2 || cs != ct {
			return -1
		}
		d := l.posInChain[e.Target] - l.posInChain[e.Source]
		if d < 0 {
			return -1
		}
		return d
	}
	// Unindexed fallback: walk forward bounded by chain length.
	cur := e.Source
	var dist int64
	const walkBound = 1 << 20
	for dist < walkBound {
		next, ok := l.next[cur]
		if !ok {
			return -1
		}
		dist++
		if next == e.Target {
			return dist
		}
		cur = next
	}
	return -1
}

// IsConnected reports whether edge.Target lies within [min,max] hops of
// edge.Source along the chain.
func (l *LinearStorage) IsConnected(e Edge, min, max uint32) bool {
	d := l.Distance(e)
	return d >= int64(min) && d <= int64(max)
}

// FindConnected returns every node within [min,max] positions after
// source on its chain.
func (l *LinearStorage) FindConnected(source NodeID, min, max uint32) []NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.indexValid {
		chainIdx, ok := l.chainOf[source]
		if !ok {
			return nil
		}
		pos := l.posInChain[source]
		chain := l.chains[chainIdx]
		var out []NodeID
		for hop := int64(min); hop <= int64(max); hop++ {
			target := pos + hop
			if hop == 0 && target == pos {
				out = append(out, source)
				continue
			}
			if target < 0 || target >= int64(len(chain)) {
				continue
			}
			out = append(out, chain[target])
		}
		return out
	}
	return CollectReachable(l.outgoingFuncLocked(), source, min, max)
}

func (l *LinearStorage) outgoingFuncLocked() OutgoingFunc {
	return func(node NodeID) []NodeID {
		if t, ok := l.next[node]; ok {
			return []NodeID{t}
		}
		return nil
	}
}

// EdgeAnnotations returns the annotation set for edge.
func (l *LinearStorage) EdgeAnnotations(e Edge) []Annotation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m := l.annos[e]
	out := make([]Annotation, 0, len(m))
	for k, v := range m {
		out = append(out, Annotation{Key: k, Value: v})
	}
	return out
}

// SourceNodes returns every node that is the source of an edge matching
// the optional annotation filter.
func (l *LinearStorage) SourceNodes(key *annostore.Key, value *strpool.ID) []NodeID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[NodeID]struct{})
	for e, annos := range l.annos {
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
func (l *LinearStorage) Statistics() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.stats
	s.Valid = l.statsValid
	return s
}

// CalculateStatistics recomputes Stats; a well-formed ordering component
// is always acyclic with fan-out <= 1, so this is cheap.
func (l *LinearStorage) CalculateStatistics() {
	l.mu.Lock()
	nodes := make(map[NodeID]struct{})
	for n, t := range l.next {
		nodes[n] = struct{}{}
		nodes[t] = struct{}{}
	}
	nodeList := setKeys(nodes)
	outFn := l.outgoingFuncLocked()
	inFn := func(node NodeID) []NodeID {
		if s, ok := l.prev[node]; ok {
			return []NodeID{s}
		}
		return nil
	}
	l.mu.Unlock()

	stats := ComputeStats(nodeList, outFn, inFn)

	l.mu.Lock()
	l.stats = stats
	l.statsValid = true
	l.mu.Unlock()
}
