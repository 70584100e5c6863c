// Package graphstorage implements the pluggable edge-component storage
// contract (spec §4.3): each Component (from pkg/component) owns one
// storage that maps edges to annotation sets and answers bounded
// reachability queries.
//
// Four implementations are provided (adjacency list, pre/post order,
// linear, dense adjacency); pkg/graphstorage/registry.go picks one from a
// component's statistics. All implementations satisfy the same
// ReadableGraphStorage / WritableGraphStorage contract, so callers never
// need to know which one backs a given component.
package graphstorage

import (
	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// NodeID aliases the corpus-wide node identifier.
type NodeID = annostore.NodeID

// Edge is an ordered pair of node IDs (spec §3).
type Edge struct {
	Source NodeID
	Target NodeID
}

// Annotation is an edge-level (key, value) pair. Unlike node annotations,
// spec.md describes an edge as mapping to a *set* of annotations; we still
// enforce at most one value per key within that set (mirroring the node
// annotation invariant) since nothing in spec.md requires duplicate keys
// and every write operation is an upsert-by-key ("AddEdgeLabel ... upsert
// edge annotation").
type Annotation struct {
	Key   annostore.Key
	Value strpool.ID
}

// Stats is the per-storage statistics block from spec §3, computed on
// demand by CalculateStatistics and invalidated by every write.
type Stats struct {
	Valid         bool
	Nodes         int64
	AvgFanOut     float64
	MaxFanOut     int64
	P99FanOut     int64
	MaxDepth      uint32
	DFSVisitRatio float64
	Cyclic        bool
	RootedTree    bool
}

// ReadableGraphStorage is the read contract every implementation offers.
type ReadableGraphStorage interface {
	// IsConnected reports whether target is reachable from source within
	// [min,max] hops along this storage's edges.
	IsConnected(edge Edge, min, max uint32) bool

	// Distance returns the shortest hop distance for edge, or -1 if
	// target is unreachable from source (including beyond any internal
	// cycle-detection bound).
	Distance(edge Edge) int64

	// FindConnected returns every node reachable from source within
	// [min,max] hops, cycle-safe (a node already on the current DFS path
	// is never re-entered, see pkg/graphstorage/dfs.go).
	FindConnected(source NodeID, min, max uint32) []NodeID

	// Outgoing returns the direct (1-hop) successors of node.
	Outgoing(node NodeID) []NodeID
	// Incoming returns the direct (1-hop) predecessors of node.
	Incoming(node NodeID) []NodeID

	// EdgeAnnotations returns the annotation set attached to edge.
	EdgeAnnotations(edge Edge) []Annotation

	// SourceNodes returns every node that is the source of at least one
	// edge whose annotation set matches keyFilter (nil key = any key) and
	// the optional value; used by NodeByEdgeAnnoSearch (spec §4.7).
	SourceNodes(key *annostore.Key, value *strpool.ID) []NodeID

	// Statistics returns the last computed Stats; Valid is false if
	// CalculateStatistics has not run since the last write.
	Statistics() Stats
}

// WritableGraphStorage extends ReadableGraphStorage with mutation.
type WritableGraphStorage interface {
	ReadableGraphStorage

	AddEdge(edge Edge) error
	AddEdgeAnnotation(edge Edge, anno Annotation) error
	DeleteEdge(edge Edge) error
	// DeleteNode removes node as an endpoint from every edge in this
	// storage (both as source and as target).
	DeleteNode(node NodeID) error

	// CalculateStatistics recomputes Stats from the current edge set.
	CalculateStatistics()
}

// ImplKind names a concrete storage implementation, used by the registry
// (spec §4.3 "registry") and persisted as the type tag for each component's
// on-disk component.bin file (spec §6).
type ImplKind string

const (
	KindAdjacencyList ImplKind = "adjacencylist"
	KindPrePostOrder  ImplKind = "prepostorder"
	KindLinear        ImplKind = "linear"
	KindDense         ImplKind = "dense"
)
