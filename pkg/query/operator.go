package query

import (
	"math"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
)

// Operator is the spec §4.8 contract: retrieve candidate matches for the
// right side given a bound left side, filter an already-bound pair, and
// report cost estimates the planner uses to pick a join strategy.
type Operator interface {
	RetrieveMatches(lhs Match) Search
	Filter(lhs, rhs Match) bool
	Selectivity() float64
	EdgeAnnoSelectivity() float64
	GuessMaxCount() int64
	Commutative() bool
	// Symbol renders the operator kind for match-description / debug
	// purposes (">", "->", ".", "@" per spec §4.8).
	Symbol() string
}

// sliceSearch adapts a precomputed []Match to the Search interface, used
// by every operator's RetrieveMatches (operators compute candidates
// eagerly via find_connected rather than streaming them, matching the
// bounded-distance contract of edge-component storage).
type sliceSearch struct {
	matches []Match
	pos     int
}

func newSliceSearch(matches []Match) *sliceSearch { return &sliceSearch{matches: matches} }

func (s *sliceSearch) Next() (Match, bool) {
	if s.pos >= len(s.matches) {
		return Match{}, false
	}
	m := s.matches[s.pos]
	s.pos++
	return m, true
}
func (s *sliceSearch) Reset()               { s.pos = 0 }
func (s *sliceSearch) GuessMaxCount() int64 { return int64(len(s.matches)) }
func (s *sliceSearch) Describe() string     { return "sliceSearch" }

// EdgeOperator is the generic edge-based operator parameterized by
// component type (spec §9 "re-architect as a generic edge-operator struct
// parameterized by component type, with concrete operators differing only
// in the type tag and the printed symbol" — replacing the source's
// abstract-edge-operator inheritance hierarchy).
type EdgeOperator struct {
	corpus *corpus.Corpus

	compType   component.Type
	layer      string // "" = all layers
	name       string
	hasName    bool
	symbol     string
	min, max   uint32
	annoFilter *EdgeAnnoFilter
}

// NewDominanceOperator builds the ">" operator over Dominance components.
func NewDominanceOperator(c *corpus.Corpus, layer, name string, hasName bool, min, max uint32, filter *EdgeAnnoFilter) *EdgeOperator {
	return &EdgeOperator{corpus: c, compType: component.Dominance, layer: layer, name: name, hasName: hasName, symbol: ">", min: min, max: max, annoFilter: filter}
}

// NewPointingOperator builds the "->" operator over Pointing components.
func NewPointingOperator(c *corpus.Corpus, layer, name string, hasName bool, min, max uint32, filter *EdgeAnnoFilter) *EdgeOperator {
	return &EdgeOperator{corpus: c, compType: component.Pointing, layer: layer, name: name, hasName: hasName, symbol: "->", min: min, max: max, annoFilter: filter}
}

// NewPrecedenceOperator builds the "." operator over an Ordering component.
func NewPrecedenceOperator(c *corpus.Corpus, layer string, min, max uint32) *EdgeOperator {
	return &EdgeOperator{corpus: c, compType: component.Ordering, layer: layer, symbol: ".", min: min, max: max}
}

// NewPartOfSubCorpusOperator builds the "@" operator.
func NewPartOfSubCorpusOperator(c *corpus.Corpus, layer string, min, max uint32) *EdgeOperator {
	return &EdgeOperator{corpus: c, compType: component.PartOfSubCorpus, layer: layer, symbol: "@", min: min, max: max}
}

func (op *EdgeOperator) matchingComponents() []component.Component {
	var out []component.Component
	for _, comp := range op.corpus.Components() {
		if comp.Type != op.compType {
			continue
		}
		if op.layer != "" && comp.Layer != op.layer {
			continue
		}
		if op.hasName && comp.Name != op.name {
			continue
		}
		out = append(out, comp)
	}
	return out
}

func (op *EdgeOperator) RetrieveMatches(lhs Match) Search {
	seen := make(map[annostore.NodeID]struct{})
	var out []Match
	for _, comp := range op.matchingComponents() {
		storage, err := op.corpus.Storage(comp)
		if err != nil {
			continue
		}
		for _, n := range storage.FindConnected(lhs.Node, op.min, op.max) {
			if _, ok := seen[n]; ok {
				continue
			}
			if op.annoFilter != nil {
				edge := graphstorage.Edge{Source: lhs.Node, Target: n}
				if !op.annoFilter.matches(storage.EdgeAnnotations(edge), op.corpus.Pool) {
					continue
				}
			}
			seen[n] = struct{}{}
			out = append(out, Match{Node: n})
		}
	}
	return newSliceSearch(out)
}

func (op *EdgeOperator) Filter(lhs, rhs Match) bool {
	for _, comp := range op.matchingComponents() {
		storage, err := op.corpus.Storage(comp)
		if err != nil {
			continue
		}
		edge := graphstorage.Edge{Source: lhs.Node, Target: rhs.Node}
		if !storage.IsConnected(edge, op.min, op.max) {
			continue
		}
		if op.annoFilter != nil && !op.annoFilter.matches(storage.EdgeAnnotations(edge), op.corpus.Pool) {
			continue
		}
		return true
	}
	return false
}

// Selectivity implements spec §4.8's estimate: p_node_in_storage *
// reachable / nodes, where nodes is the corpus's total node count (not
// the storage's own node count -- confirmed against
// _examples/original_source/src/lib/annis/operators/abstractedgeoperator.cpp's
// selectivity(), which computes p_nodeInStorage = stat.nodes / maxNodes
// against maxNodes = the corpus-wide node count, then divides by
// stat.nodes again so the two corpus-wide normalizations don't cancel);
// reachable = ceil(avg_fan_out * (max_path - min_path)); cyclic storages
// collapse to 1.0; an un-recomputed storage falls back to a conservative
// default (the original's same fallback) rather than being skipped.
func (op *EdgeOperator) Selectivity() float64 {
	comps := op.matchingComponents()
	if len(comps) == 0 {
		return 0.0 // no storage backs this operator: it can match nothing
	}
	maxNodes := float64(len(op.corpus.AllNodeIDs()))
	if maxNodes == 0 {
		return 1.0
	}

	var worst float64
	for _, comp := range comps {
		storage, err := op.corpus.Storage(comp)
		if err != nil {
			continue
		}
		stats := storage.Statistics()

		var sel float64
		switch {
		case !stats.Valid:
			sel = 0.01 // matches the original's "assume a default selectivity"
		case stats.Cyclic:
			return 1.0
		case stats.Nodes == 0:
			sel = 0.0
		default:
			reachable := math.Ceil(stats.AvgFanOut * float64(op.max-op.min))
			pNodeInStorage := float64(stats.Nodes) / maxNodes
			sel = pNodeInStorage * reachable / float64(stats.Nodes)
		}
		if sel > worst {
			worst = sel
		}
	}
	if worst > 1.0 {
		worst = 1.0
	}
	return worst
}

func (op *EdgeOperator) EdgeAnnoSelectivity() float64 {
	if op.annoFilter == nil {
		return 1.0
	}
	return 0.1 // heuristic: an edge-annotation filter is assumed selective
}

func (op *EdgeOperator) GuessMaxCount() int64 {
	var total int64
	for _, comp := range op.matchingComponents() {
		storage, err := op.corpus.Storage(comp)
		if err != nil {
			continue
		}
		total += storage.Statistics().Nodes
	}
	return total
}

func (op *EdgeOperator) Commutative() bool { return false }
func (op *EdgeOperator) Symbol() string    { return op.symbol }

// tokenHelper implements left_token/right_token/is_token (spec §4.8).
type tokenHelper struct {
	c *corpus.Corpus
}

func (h tokenHelper) leftRightComponents(t component.Type) []component.Component {
	var out []component.Component
	for _, comp := range h.c.Components() {
		if comp.Type == t {
			out = append(out, comp)
		}
	}
	return out
}

func (h tokenHelper) leftToken(n annostore.NodeID) annostore.NodeID {
	if IsToken(h.c, n) {
		return n
	}
	for _, comp := range h.leftRightComponents(component.LeftToken) {
		s, err := h.c.Storage(comp)
		if err != nil {
			continue
		}
		if out := s.Outgoing(n); len(out) > 0 {
			return out[0]
		}
	}
	return n
}

func (h tokenHelper) rightToken(n annostore.NodeID) annostore.NodeID {
	if IsToken(h.c, n) {
		return n
	}
	for _, comp := range h.leftRightComponents(component.RightToken) {
		s, err := h.c.Storage(comp)
		if err != nil {
			continue
		}
		if out := s.Outgoing(n); len(out) > 0 {
			return out[0]
		}
	}
	return n
}

// orderingDistance returns the ordering distance from a to b (possibly
// negative direction handled by two Distance calls), or false if they are
// on different texts/chains entirely.
func (h tokenHelper) orderingDistance(a, b annostore.NodeID) (int64, bool) {
	for _, comp := range h.leftRightComponents(component.Ordering) {
		s, err := h.c.Storage(comp)
		if err != nil {
			continue
		}
		if d := s.Distance(graphstorage.Edge{Source: a, Target: b}); d >= 0 {
			return d, true
		}
	}
	return 0, false
}

// CoverageOperator implements Overlap/Inclusion/IdenticalCoverage (spec
// §4.8): all three reduce to comparisons of left_token/right_token ranges
// via the ordering component, so one struct covers all three with a mode
// flag rather than three near-duplicate types.
type CoverageOperator struct {
	corpus *corpus.Corpus
	tok    tokenHelper
	mode   coverageMode
}

type coverageMode int

const (
	modeOverlap coverageMode = iota
	modeInclusion
	modeIdenticalCoverage
)

// NewOverlapOperator builds the Overlap coverage operator.
func NewOverlapOperator(c *corpus.Corpus) *CoverageOperator {
	return &CoverageOperator{corpus: c, tok: tokenHelper{c}, mode: modeOverlap}
}

// NewInclusionOperator builds the Inclusion coverage operator.
func NewInclusionOperator(c *corpus.Corpus) *CoverageOperator {
	return &CoverageOperator{corpus: c, tok: tokenHelper{c}, mode: modeInclusion}
}

// NewIdenticalCoverageOperator builds the IdenticalCoverage operator.
func NewIdenticalCoverageOperator(c *corpus.Corpus) *CoverageOperator {
	return &CoverageOperator{corpus: c, tok: tokenHelper{c}, mode: modeIdenticalCoverage}
}

func (op *CoverageOperator) span(n annostore.NodeID) (annostore.NodeID, annostore.NodeID) {
	return op.tok.leftToken(n), op.tok.rightToken(n)
}

func (op *CoverageOperator) Filter(lhs, rhs Match) bool {
	lLeft, lRight := op.span(lhs.Node)
	rLeft, rRight := op.span(rhs.Node)

	switch op.mode {
	case modeIdenticalCoverage:
		return lLeft == rLeft && lRight == rRight
	case modeInclusion:
		// rhs range inside lhs range: distance(lLeft,rLeft) >= 0 and
		// distance(rRight,lRight) >= 0.
		if _, ok := op.tok.orderingDistance(lLeft, rLeft); !ok {
			return false
		}
		_, ok := op.tok.orderingDistance(rRight, lRight)
		return ok
	default: // modeOverlap
		_, fwd := op.tok.orderingDistance(lLeft, rRight)
		_, bwd := op.tok.orderingDistance(rLeft, lRight)
		return fwd && bwd
	}
}

// RetrieveMatches collects every non-token node covering any token in
// lhs's range, plus lhs itself (spec §4.8 Overlap retrieval rule, reused
// for Inclusion/IdenticalCoverage since both are Filter-checked subsets of
// "overlaps at all").
func (op *CoverageOperator) RetrieveMatches(lhs Match) Search {
	left, right := op.span(lhs.Node)
	tokens := []annostore.NodeID{left}
	if dist, ok := op.tok.orderingDistance(left, right); ok {
		for _, comp := range op.tok.leftRightComponents(component.Ordering) {
			s, err := op.corpus.Storage(comp)
			if err != nil {
				continue
			}
			tokens = append(tokens, s.FindConnected(left, 1, uint32(dist))...)
			break
		}
	}

	seen := map[annostore.NodeID]struct{}{lhs.Node: {}}
	out := []Match{lhs}
	for _, comp := range op.tok.leftRightComponents(component.InverseCoverage) {
		s, err := op.corpus.Storage(comp)
		if err != nil {
			continue
		}
		for _, tok := range tokens {
			for _, covering := range s.Outgoing(tok) {
				if _, ok := seen[covering]; ok {
					continue
				}
				seen[covering] = struct{}{}
				out = append(out, Match{Node: covering})
			}
		}
	}
	return newSliceSearch(out)
}

func (op *CoverageOperator) Selectivity() float64         { return 0.3 }
func (op *CoverageOperator) EdgeAnnoSelectivity() float64 { return 1.0 }
func (op *CoverageOperator) GuessMaxCount() int64         { return -1 }
func (op *CoverageOperator) Commutative() bool            { return op.mode == modeIdenticalCoverage }
func (op *CoverageOperator) Symbol() string {
	switch op.mode {
	case modeInclusion:
		return "_i_"
	case modeIdenticalCoverage:
		return "_=_"
	default:
		return "_o_"
	}
}

// IdenticalNodeOperator implements spec §4.8's IdenticalNode: lhs.node ==
// rhs.node with any-annotation identity.
type IdenticalNodeOperator struct{}

// NewIdenticalNodeOperator builds the "_ident_" operator.
func NewIdenticalNodeOperator() *IdenticalNodeOperator { return &IdenticalNodeOperator{} }

func (op *IdenticalNodeOperator) RetrieveMatches(lhs Match) Search {
	return newSliceSearch([]Match{{Node: lhs.Node}})
}
func (op *IdenticalNodeOperator) Filter(lhs, rhs Match) bool { return lhs.Node == rhs.Node }
func (op *IdenticalNodeOperator) Selectivity() float64         { return 0 }
func (op *IdenticalNodeOperator) EdgeAnnoSelectivity() float64 { return 1.0 }
func (op *IdenticalNodeOperator) GuessMaxCount() int64         { return 1 }
func (op *IdenticalNodeOperator) Commutative() bool            { return true }
func (op *IdenticalNodeOperator) Symbol() string               { return "_ident_" }
