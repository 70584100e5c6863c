package graphstorage

// OutgoingFunc returns the direct successors of node; DFS is parameterized
// over this so it can drive any storage's Outgoing without an interface
// dependency cycle.
type OutgoingFunc func(node NodeID) []NodeID

// stackEntry is one frame of the explicit DFS stack: a node and the hop
// distance at which it was reached.
type stackEntry struct {
	node     NodeID
	distance uint32
}

// DFS is a depth-first traversal iterator bounded to [minDistance,
// maxDistance] hops from startNode. Modeled as an explicit stateful
// iterator with Reset rather than a generator (spec §9 design notes).
type DFS struct {
	outgoing    OutgoingFunc
	startNode   NodeID
	minDistance uint32
	maxDistance uint32

	stack []stackEntry
}

// NewDFS returns a DFS iterator ready to produce nodes via Next.
func NewDFS(outgoing OutgoingFunc, startNode NodeID, minDistance, maxDistance uint32) *DFS {
	d := &DFS{outgoing: outgoing, startNode: startNode, minDistance: minDistance, maxDistance: maxDistance}
	d.Reset()
	return d
}

// Reset rewinds the iterator to its initial state.
func (d *DFS) Reset() {
	d.stack = []stackEntry{{node: d.startNode, distance: 0}}
}

// beforeEnterNode allows subtypes (CycleSafeDFS) to veto entering a node.
// The base DFS always allows it.
func (d *DFS) beforeEnterNode(node NodeID, distance uint32) bool { return true }

// onEnterNode allows subtypes to record bookkeeping as a node is entered.
func (d *DFS) onEnterNode(node NodeID, distance uint32) {}

// Next pops the traversal stack until it finds a node whose distance lies
// in [minDistance, maxDistance], pushing that node's children (when
// distance < maxDistance) before returning. Returns (0, false) once the
// stack is exhausted.
func (d *DFS) Next() (NodeID, bool) {
	for len(d.stack) > 0 {
		top := d.stack[len(d.stack)-1]
		if !d.beforeEnterNode(top.node, top.distance) {
			d.stack = d.stack[:len(d.stack)-1]
			continue
		}
		d.stack = d.stack[:len(d.stack)-1]
		d.onEnterNode(top.node, top.distance)

		if top.distance < d.maxDistance {
			for _, child := range d.outgoing(top.node) {
				d.stack = append(d.stack, stackEntry{node: child, distance: top.distance + 1})
			}
		}
		if top.distance >= d.minDistance && top.distance <= d.maxDistance {
			return top.node, true
		}
	}
	return 0, false
}

// CycleSafeDFS is a DFS that never re-enters a node already on the current
// traversal path, emitting no diagnostic by default but exposing
// CycleDetected() for callers that want to know a cycle was skipped
// (grounded in annis4's CycleSafeDFS, dfs.cpp).
type CycleSafeDFS struct {
	DFS

	nodesInPath  map[NodeID]struct{}
	distanceNode map[uint32]NodeID
	lastDistance uint32
	cycleFound   bool
}

// NewCycleSafeDFS returns a cycle-safe DFS iterator.
func NewCycleSafeDFS(outgoing OutgoingFunc, startNode NodeID, minDistance, maxDistance uint32) *CycleSafeDFS {
	d := &CycleSafeDFS{}
	d.outgoing = outgoing
	d.startNode = startNode
	d.minDistance = minDistance
	d.maxDistance = maxDistance
	d.Reset()
	return d
}

// Reset rewinds the iterator, including path-tracking state.
func (d *CycleSafeDFS) Reset() {
	d.nodesInPath = map[NodeID]struct{}{d.startNode: {}}
	d.distanceNode = map[uint32]NodeID{0: d.startNode}
	d.lastDistance = 0
	d.DFS.Reset()
}

// CycleDetected reports whether Next has ever skipped a node because it
// was already on the current path.
func (d *CycleSafeDFS) CycleDetected() bool { return d.cycleFound }

func (d *CycleSafeDFS) beforeEnterNodeImpl(node NodeID, distance uint32) bool {
	if d.lastDistance >= distance {
		// A subgraph was just completed: drop every node recorded at or
		// below this depth from the path set.
		for dist, n := range d.distanceNode {
			if dist >= distance {
				delete(d.nodesInPath, n)
				delete(d.distanceNode, dist)
			}
		}
	}
	if _, inPath := d.nodesInPath[node]; inPath {
		d.lastDistance = distance
		d.cycleFound = true
		return false
	}
	return true
}

func (d *CycleSafeDFS) onEnterNodeImpl(node NodeID, distance uint32) {
	d.nodesInPath[node] = struct{}{}
	d.distanceNode[distance] = node
	d.lastDistance = distance
}

// Next overrides DFS.Next to hook the cycle-safe before/after callbacks,
// since Go has no virtual dispatch to override DFS.beforeEnterNode.
func (d *CycleSafeDFS) Next() (NodeID, bool) {
	for len(d.stack) > 0 {
		top := d.stack[len(d.stack)-1]
		if !d.beforeEnterNodeImpl(top.node, top.distance) {
			d.stack = d.stack[:len(d.stack)-1]
			continue
		}
		d.stack = d.stack[:len(d.stack)-1]
		d.onEnterNodeImpl(top.node, top.distance)

		if top.distance < d.maxDistance {
			for _, child := range d.outgoing(top.node) {
				d.stack = append(d.stack, stackEntry{node: child, distance: top.distance + 1})
			}
		}
		if top.distance >= d.minDistance && top.distance <= d.maxDistance {
			return top.node, true
		}
	}
	return 0, false
}

// UniqueDFS wraps CycleSafeDFS and additionally suppresses nodes it has
// already emitted at any point in the traversal (not just the current
// path), giving callers a duplicate-free node stream.
type UniqueDFS struct {
	CycleSafeDFS
	emitted map[NodeID]struct{}
}

// NewUniqueDFS returns a DFS iterator that never emits the same node twice.
func NewUniqueDFS(outgoing OutgoingFunc, startNode NodeID, minDistance, maxDistance uint32) *UniqueDFS {
	d := &UniqueDFS{emitted: make(map[NodeID]struct{})}
	d.outgoing = outgoing
	d.startNode = startNode
	d.minDistance = minDistance
	d.maxDistance = maxDistance
	d.Reset()
	return d
}

// Reset rewinds the iterator, forgetting previously emitted nodes.
func (d *UniqueDFS) Reset() {
	d.emitted = make(map[NodeID]struct{})
	d.CycleSafeDFS.Reset()
}

// Next returns the next not-yet-emitted node in [minDistance,maxDistance].
func (d *UniqueDFS) Next() (NodeID, bool) {
	for {
		node, ok := d.CycleSafeDFS.Next()
		if !ok {
			return 0, false
		}
		if _, seen := d.emitted[node]; seen {
			continue
		}
		d.emitted[node] = struct{}{}
		return node, true
	}
}

// CollectReachable drains a cycle-safe, duplicate-free DFS from start into
// a plain slice; the common case needed by FindConnected implementations.
func CollectReachable(outgoing OutgoingFunc, start NodeID, min, max uint32) []NodeID {
	it := NewUniqueDFS(outgoing, start, min, max)
	var out []NodeID
	for {
		n, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, n)
	}
	return out
}
