package graphstorage

import (
	"github.com/corpusgraph/corpusdb/pkg/component"
)

// New constructs an empty, writable storage of kind.
func New(kind ImplKind) WritableGraphStorage {
	switch kind {
	case KindPrePostOrder:
		return NewPrePostOrderStorage()
	case KindLinear:
		return NewLinearStorage()
	case KindDense:
		return NewDenseAdjacencyStorage()
	default:
		return NewAdjacencyListStorage()
	}
}

// PickImplementation chooses a storage implementation for a freshly loaded
// or newly created component (spec §4.3 "registry"): Ordering components
// always get the linear chain representation; a component whose type is
// Dominance is assumed to be a rooted forest and gets pre/post order;
// everything else defaults to the adjacency list, the only implementation
// guaranteed correct for arbitrary (possibly cyclic) edge sets.
func PickImplementation(c component.Component) ImplKind {
	switch c.Type {
	case component.Ordering, component.LeftToken, component.RightToken:
		return KindLinear
	case component.Dominance:
		return KindPrePostOrder
	default:
		return KindAdjacencyList
	}
}

// PickImplementationFromStats refines PickImplementation once a component's
// Stats are known: a small, cycle-free, low fan-out component can be
// repacked as dense adjacency regardless of type, trading the adjacency
// list's map-of-sets for sorted slices. Rooted trees move to pre/post order
// even if the type wasn't Dominance (a Pointing layer can still happen to
// be a tree), and anything cyclic is forced back to the adjacency list
// since pre/post and linear both reject cycles.
func PickImplementationFromStats(c component.Component, stats Stats) ImplKind {
	if !stats.Valid {
		return PickImplementation(c)
	}
	if stats.Cyclic {
		return KindAdjacencyList
	}
	if c.Type == component.Ordering || c.Type == component.LeftToken || c.Type == component.RightToken {
		return KindLinear
	}
	if stats.RootedTree {
		return KindPrePostOrder
	}
	if stats.MaxFanOut <= denseFanOutThreshold {
		return KindDense
	}
	return KindAdjacencyList
}

// denseFanOutThreshold bounds the fan-out below which the dense
// implementation's O(log n) sorted-slice operations beat the adjacency
// list's larger per-node map overhead.
const denseFanOutThreshold = 8

// Convert copies every edge, edge annotation, and node membership from src
// into a freshly constructed storage of kind, then rebuilds its index and
// statistics. This is the "conversion copies via the abstract read API; the
// destination rebuilds its index" step from spec §4.3: src is read purely
// through ReadableGraphStorage, so Convert works between any pair of
// implementations without either needing to know the other's internals.
func Convert(src ReadableGraphStorage, kind ImplKind, allNodes []NodeID) WritableGraphStorage {
	dst := New(kind)

	seen := make(map[Edge]struct{})
	for _, node := range allNodes {
		for _, target := range src.Outgoing(node) {
			e := Edge{Source: node, Target: target}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			annos := src.EdgeAnnotations(e)
			if len(annos) == 0 {
				_ = dst.AddEdge(e)
				continue
			}
			for _, a := range annos {
				_ = dst.AddEdgeAnnotation(e, a)
			}
		}
	}

	if indexed, ok := dst.(interface{ CalculateIndex() }); ok {
		indexed.CalculateIndex()
	}
	dst.CalculateStatistics()
	return dst
}
