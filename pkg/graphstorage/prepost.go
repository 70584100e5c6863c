package graphstorage

import (
	"sort"
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// PrePostOrderStorage backs Dominance-type components that form a rooted
// forest (spec §4.3): a precomputed Euler-tour interval labeling gives
// O(1) ancestor tests. CalculateIndex rejects cyclic input by leaving the
// index invalid, in which case Distance/IsConnected fall back to a plain
// DFS ancestor walk (still correct, just not O(1)).
type PrePostOrderStorage struct {
	mu sync.RWMutex

	children map[NodeID]map[NodeID]struct{}
	parent   map[NodeID]NodeID
	annos    map[Edge]map[annostore.Key]strpool.ID

	indexValid bool
	pre        map[NodeID]int64
	post       map[NodeID]int64
	level      map[NodeID]uint32
	preSorted  []NodeID // nodes sorted by pre value, for potential range scans

	stats      Stats
	statsValid bool
}

// NewPrePostOrderStorage returns an empty pre/post-order storage.
func NewPrePostOrderStorage() *PrePostOrderStorage {
	return &PrePostOrderStorage{
		children: make(map[NodeID]map[NodeID]struct{}),
		parent:   make(map[NodeID]NodeID),
		annos:    make(map[Edge]map[annostore.Key]strpool.ID),
	}
}

// AddEdge records target as a child of source.
func (p *PrePostOrderStorage) AddEdge(e Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.children[e.Source] == nil {
		p.children[e.Source] = make(map[NodeID]struct{})
	}
	p.children[e.Source][e.Target] = struct{}{}
	p.parent[e.Target] = e.Source
	p.indexValid = false
	p.statsValid = false
	return nil
}

// AddEdgeAnnotation upserts an annotation, implicitly adding the edge.
func (p *PrePostOrderStorage) AddEdgeAnnotation(e Edge, anno Annotation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.children[e.Source] == nil {
		p.children[e.Source] = make(map[NodeID]struct{})
	}
	if _, ok := p.children[e.Source][e.Target]; !ok {
		p.children[e.Source][e.Target] = struct{}{}
		p.parent[e.Target] = e.Source
		p.indexValid = false
	}
	if p.annos[e] == nil {
		p.annos[e] = make(map[annostore.Key]strpool.ID)
	}
	p.annos[e][anno.Key] = anno.Value
	p.statsValid = false
	return nil
}

// DeleteEdge removes the parent/child relationship and its annotations.
func (p *PrePostOrderStorage) DeleteEdge(e Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kids, ok := p.children[e.Source]; ok {
		delete(kids, e.Target)
		if len(kids) == 0 {
			delete(p.children, e.Source)
		}
	}
	if p.parent[e.Target] == e.Source {
		delete(p.parent, e.Target)
	}
	delete(p.annos, e)
	p.indexValid = false
	p.statsValid = false
	return nil
}

// DeleteNode removes node from the forest, detaching (not reattaching)
// its children.
func (p *PrePostOrderStorage) DeleteNode(node NodeID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for child := range p.children[node] {
		delete(p.parent, child)
		delete(p.annos, Edge{Source: node, Target: child})
	}
	delete(p.children, node)

	if par, ok := p.parent[node]; ok {
		if kids, ok := p.children[par]; ok {
			delete(kids, node)
			if len(kids) == 0 {
				delete(p.children, par)
			}
		}
		delete(p.annos, Edge{Source: par, Target: node})
	}
	delete(p.parent, node)

	p.indexValid = false
	p.statsValid = false
	return nil
}

// CalculateIndex rebuilds the pre/post/level Euler-tour labeling. Cyclic
// input (a node reachable from itself) leaves the index invalid rather
// than looping forever, matching the "rejects cyclic components" rule in
// spec §4.3.
func (p *PrePostOrderStorage) CalculateIndex() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calculateIndexLocked()
}

func (p *PrePostOrderStorage) calculateIndexLocked() {
	nodes := make(map[NodeID]struct{})
	for n, kids := range p.children {
		nodes[n] = struct{}{}
		for k := range kids {
			nodes[k] = struct{}{}
		}
	}

	var roots []NodeID
	for n := range nodes {
		if _, hasParent := p.parent[n]; !hasParent {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	pre := make(map[NodeID]int64)
	post := make(map[NodeID]int64)
	level := make(map[NodeID]uint32)
	var counter int64
	var preSorted []NodeID
	cyclic := false

	type frame struct {
		node     NodeID
		lvl      uint32
		children []NodeID
		idx      int
		entered  bool
	}

	for _, root := range roots {
		stack := []*frame{{node: root, children: sortedKeys(p.children[root])}}
		pre[root] = counter
		preSorted = append(preSorted, root)
		counter++
		level[root] = 0
		onPath := map[NodeID]struct{}{root: {}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.idx >= len(top.children) {
				post[top.node] = counter
				counter++
				delete(onPath, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			child := top.children[top.idx]
			top.idx++
			if _, inPath := onPath[child]; inPath {
				cyclic = true
				continue
			}
			pre[child] = counter
			preSorted = append(preSorted, child)
			counter++
			level[child] = top.lvl + 1
			onPath[child] = struct{}{}
			stack = append(stack, &frame{node: child, lvl: top.lvl + 1, children: sortedKeys(p.children[child])})
		}
	}

	// A node that no root reaches lies on a cycle with no entry point.
	if cyclic || len(pre) < len(nodes) {
		p.indexValid = false
		return
	}

	p.pre = pre
	p.post = post
	p.level = level
	p.preSorted = preSorted
	p.indexValid = true
}

func sortedKeys(m map[NodeID]struct{}) []NodeID {
	out := setKeys(m)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Outgoing returns node's direct children.
func (p *PrePostOrderStorage) Outgoing(node NodeID) []NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return setKeys(p.children[node])
}

// Incoming returns node's direct parent, if any.
func (p *PrePostOrderStorage) Incoming(node NodeID) []NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if par, ok := p.parent[node]; ok {
		return []NodeID{par}
	}
	return nil
}

// isAncestorIndexed reports (isAncestor, levelDiff) for an indexed forest.
func (p *PrePostOrderStorage) isAncestorIndexed(source, target NodeID) (bool, uint32) {
	ps, ok1 := p.pre[source]
	pt, ok2 := p.pre[target]
	postS := p.post[source]
	if !ok1 || !ok2 {
		return false, 0
	}
	if source == target {
		return true, 0
	}
	if ps < pt && pt < postS {
		return true, p.level[target] - p.level[source]
	}
	return false, 0
}

// Distance returns the level difference between edge.Source and
// edge.Target if the latter is a descendant of the former, else -1.
func (p *PrePostOrderStorage) Distance(e Edge) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e.Source == e.Target {
		return 0
	}
	if p.indexValid {
		isAnc, diff := p.isAncestorIndexed(e.Source, e.Target)
		if !isAnc {
			return -1
		}
		return int64(diff)
	}
	return distanceByWalk(p.outgoingFuncLocked(), e.Source, e.Target)
}

func distanceByWalk(outgoing OutgoingFunc, source, target NodeID) int64 {
	if source == target {
		return 0
	}
	visited := map[NodeID]struct{}{source: {}}
	queue := []NodeID{source}
	dist := map[NodeID]int64{source: 0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range outgoing(cur) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			dist[next] = dist[cur] + 1
			if next == target {
				return dist[next]
			}
			queue = append(queue, next)
		}
	}
	return -1
}

// IsConnected reports whether edge.Target is a descendant of
// edge.Source within [min,max] levels.
func (p *PrePostOrderStorage) IsConnected(e Edge, min, max uint32) bool {
	d := p.Distance(e)
	return d >= int64(min) && d <= int64(max)
}

// FindConnected returns every descendant of source within [min,max]
// levels, via a bounded cycle-safe DFS over the child adjacency.
func (p *PrePostOrderStorage) FindConnected(source NodeID, min, max uint32) []NodeID {
	return CollectReachable(p.outgoingFuncLocked(), source, min, max)
}

func (p *PrePostOrderStorage) outgoingFuncLocked() OutgoingFunc {
	return func(node NodeID) []NodeID {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return setKeys(p.children[node])
	}
}

// EdgeAnnotations returns the annotation set for edge.
func (p *PrePostOrderStorage) EdgeAnnotations(e Edge) []Annotation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m := p.annos[e]
	out := make([]Annotation, 0, len(m))
	for k, v := range m {
		out = append(out, Annotation{Key: k, Value: v})
	}
	return out
}

// SourceNodes returns every node that is the source of an edge matching
// the optional annotation filter.
func (p *PrePostOrderStorage) SourceNodes(key *annostore.Key, value *strpool.ID) []NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := make(map[NodeID]struct{})
	for e, annos := range p.annos {
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
func (p *PrePostOrderStorage) Statistics() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.stats
	s.Valid = p.statsValid
	return s
}

// CalculateStatistics recomputes Stats from the current forest.
func (p *PrePostOrderStorage) CalculateStatistics() {
	p.mu.Lock()
	nodes := make(map[NodeID]struct{})
	for n, kids := range p.children {
		nodes[n] = struct{}{}
		for k := range kids {
			nodes[k] = struct{}{}
		}
	}
	nodeList := setKeys(nodes)
	outFn := p.outgoingFuncLocked()
	inFn := func(node NodeID) []NodeID {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if par, ok := p.parent[node]; ok {
			return []NodeID{par}
		}
		return nil
	}
	p.mu.Unlock()

	stats := ComputeStats(nodeList, outFn, inFn)

	p.mu.Lock()
	p.stats = stats
	p.statsValid = true
	p.mu.Unlock()
}
