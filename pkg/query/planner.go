package query

import "fmt"

// NodeSpec describes one query node: a Search producing its candidate
// matches plus a human-readable name used in error messages and debug
// output (spec §4.9's "query node").
type NodeSpec struct {
	Name   string
	Search Search
}

// EdgeSpec binds an Operator between two query nodes by index into the
// Plan's Nodes slice (spec §4.9's "query graph edge").
type EdgeSpec struct {
	Left, Right int
	Op          Operator
}

// Plan is a fully assembled, ready-to-execute query: one Join per edge,
// connecting query nodes named by index (spec §4.9/§4.10).
type Plan struct {
	Nodes []NodeSpec
	Steps []PlanStep
}

// PlanStep is either a new join edge (connects two previously-disjoint
// components of the query graph) or a pure filter (both endpoints already
// connected).
type PlanStep struct {
	Left, Right int
	Join        Join       // nil if this step is filter-only
	Filter      *FilterJoin // nil if this step introduced a new join
}

// unionFind is the standard disjoint-set structure the planner uses to
// detect whether an edge connects two already-joined query nodes or two
// still-separate components (spec §4.9: "malformed if, after processing
// every operator, the query graph has more than one connected
// component").
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	u.parent[ra] = rb
	return true
}

// ErrMalformedQuery is returned by BuildPlan when the supplied operators leave
// more than one connected component over the query nodes.
type ErrMalformedQuery struct {
	Components int
	NodeCount  int
}

func (e *ErrMalformedQuery) Error() string {
	return fmt.Sprintf("query: malformed query, %d connected components over %d nodes (expected 1)", e.Components, e.NodeCount)
}

// BuildPlan assembles a Plan from nodes and edges (spec §4.9): each edge
// becomes a Join (NestedLoop or seeded) if it connects two previously
// disjoint components, or a pure FilterJoin if both endpoints are already
// joined by a prior edge. Edges are processed in the order given; callers
// wanting cost-based reordering should sort edges by operator selectivity
// (via Operator.GuessMaxCount/Selectivity) before calling BuildPlan.
func BuildPlan(nodes []NodeSpec, edges []EdgeSpec) (*Plan, error) {
	uf := newUnionFind(len(nodes))
	plan := &Plan{Nodes: nodes}

	for _, e := range edges {
		isNewEdge := uf.union(e.Left, e.Right)
		if isNewEdge {
			j := chooseJoin(nodes[e.Left].Search, nodes[e.Right].Search, e.Op)
			plan.Steps = append(plan.Steps, PlanStep{Left: e.Left, Right: e.Right, Join: j})
		} else {
			plan.Steps = append(plan.Steps, PlanStep{Left: e.Left, Right: e.Right, Filter: NewFilterJoin(e.Op)})
		}
	}

	if len(nodes) == 0 {
		return plan, nil
	}
	roots := make(map[int]struct{})
	for i := range nodes {
		roots[uf.find(i)] = struct{}{}
	}
	if len(roots) > 1 {
		return nil, &ErrMalformedQuery{Components: len(roots), NodeCount: len(nodes)}
	}
	return plan, nil
}

// chooseJoin picks NestedLoop vs a seeded join based on the operator's
// cost estimate (spec §4.9: "prefer seeding from an operator with a known,
// bounded guess_max_count over a full nested-loop scan").
func chooseJoin(left, right Search, op Operator) Join {
	if op.GuessMaxCount() >= 0 {
		return NewMaterializedSeedJoin(left, right, op, op.Commutative())
	}
	return NewNestedLoop(left, right, op)
}
