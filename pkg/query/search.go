// Package query implements the search iterators, operators, joins,
// planner, and executor of spec.md §§4.7-4.10: a query composes node
// searches and binary operators into a stream of connected match tuples.
package query

import (
	"regexp"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// Annotation aliases the edge-level annotation type shared with
// pkg/graphstorage, so filters can be built without importing that
// package at every call site.
type Annotation = graphstorage.Annotation

// Match is a single (node, annotation) pair a search or operator produces
// (spec §4.7).
type Match struct {
	Node annostore.NodeID
	Anno annostore.Annotation
}

// Search is a resettable producer of Match values (spec §9: "DFS iterators
// ... model as explicit iterators with reset; not as generators" — the same
// style applies to every node search here).
type Search interface {
	// Next advances to, and returns, the next match. ok is false once
	// exhausted.
	Next() (Match, bool)
	// Reset rewinds the search to its first match.
	Reset()
	// GuessMaxCount is a conservative upper bound on the number of
	// matches this search can ever produce (spec §4.2 guess_max_count).
	GuessMaxCount() int64
	// Describe returns a short debug string naming the search and its
	// parameters.
	Describe() string
}

// ExactValueSearch scans the (key, value) -> nodes index (spec §4.7).
type ExactValueSearch struct {
	annos *annostore.Store
	key   annostore.Key
	value strpool.ID

	nodes []annostore.NodeID
	pos   int
}

// NewExactValueSearch returns a search over every node carrying (ns, name)
// = value.
func NewExactValueSearch(annos *annostore.Store, key annostore.Key, value strpool.ID) *ExactValueSearch {
	s := &ExactValueSearch{annos: annos, key: key, value: value}
	s.nodes = annos.NodesByKeyValue(key, value)
	return s
}

func (s *ExactValueSearch) Next() (Match, bool) {
	if s.pos >= len(s.nodes) {
		return Match{}, false
	}
	n := s.nodes[s.pos]
	s.pos++
	return Match{Node: n, Anno: annostore.Annotation{Key: s.key, Value: s.value}}, true
}

func (s *ExactValueSearch) Reset()                { s.pos = 0 }
func (s *ExactValueSearch) GuessMaxCount() int64  { return int64(len(s.nodes)) }
func (s *ExactValueSearch) Describe() string      { return "ExactValueSearch" }

// ExactKeySearch scans the key -> nodes index regardless of value (spec
// §4.7).
type ExactKeySearch struct {
	annos *annostore.Store
	key   annostore.Key

	nodes []annostore.NodeID
	pos   int
}

// NewExactKeySearch returns a search over every node carrying key, any value.
func NewExactKeySearch(annos *annostore.Store, key annostore.Key) *ExactKeySearch {
	s := &ExactKeySearch{annos: annos, key: key}
	s.nodes = annos.NodesByKey(key)
	return s
}

func (s *ExactKeySearch) Next() (Match, bool) {
	if s.pos >= len(s.nodes) {
		return Match{}, false
	}
	n := s.nodes[s.pos]
	s.pos++
	value, _ := s.annos.Get(n, s.key)
	return Match{Node: n, Anno: annostore.Annotation{Key: s.key, Value: value}}, true
}

func (s *ExactKeySearch) Reset()               { s.pos = 0 }
func (s *ExactKeySearch) GuessMaxCount() int64 { return int64(len(s.nodes)) }
func (s *ExactKeySearch) Describe() string     { return "ExactKeySearch" }

// RegexSearch finds candidate value IDs via find_regex on the pool, then
// scans the value index for each (spec §4.7).
type RegexSearch struct {
	annos   *annostore.Store
	key     annostore.Key
	pattern string

	nodes []annostore.NodeID
	pos   int
}

// NewRegexSearch returns a search over every node whose value for key
// matches pattern. An invalid pattern yields zero matches (spec §4.1).
func NewRegexSearch(pool *strpool.Pool, annos *annostore.Store, key annostore.Key, pattern string) *RegexSearch {
	s := &RegexSearch{annos: annos, key: key, pattern: pattern}
	candidates := pool.FindRegex(pattern)
	seen := make(map[annostore.NodeID]struct{})
	for v := range candidates {
		for _, n := range annos.NodesByKeyValue(key, v) {
			seen[n] = struct{}{}
		}
	}
	s.nodes = make([]annostore.NodeID, 0, len(seen))
	for n := range seen {
		s.nodes = append(s.nodes, n)
	}
	return s
}

func (s *RegexSearch) Next() (Match, bool) {
	if s.pos >= len(s.nodes) {
		return Match{}, false
	}
	n := s.nodes[s.pos]
	s.pos++
	value, _ := s.annos.Get(n, s.key)
	return Match{Node: n, Anno: annostore.Annotation{Key: s.key, Value: value}}, true
}

func (s *RegexSearch) Reset()               { s.pos = 0 }
func (s *RegexSearch) GuessMaxCount() int64 { return int64(len(s.nodes)) }
func (s *RegexSearch) Describe() string     { return "RegexSearch(" + s.pattern + ")" }

// EdgeAnnoFilter optionally restricts NodeByEdgeAnnoSearch and the edge
// operators to edges carrying a specific annotation.
type EdgeAnnoFilter struct {
	Key     annostore.Key
	Value   strpool.ID
	HasVal  bool
	Pattern *regexp.Regexp
}

func (f *EdgeAnnoFilter) matches(annos []Annotation, pool *strpool.Pool) bool {
	if f == nil {
		return true
	}
	for _, a := range annos {
		if a.Key != f.Key {
			continue
		}
		if f.Pattern != nil {
			s, ok := pool.Lookup(a.Value)
			if ok && f.Pattern.MatchString(s) {
				return true
			}
			continue
		}
		if f.HasVal && a.Value == f.Value {
			return true
		}
		if !f.HasVal {
			return true
		}
	}
	return false
}

// NodeByEdgeAnnoSearch iterates the source nodes of edges in the given
// storages whose edge annotation matches filter, yielding at most one
// match per (node, anno) via annoGen (spec §4.7).
type NodeByEdgeAnnoSearch struct {
	nodes []annostore.NodeID
	gen   func(n annostore.NodeID) (annostore.Annotation, bool)
	pos   int
}

// NewNodeByEdgeAnnoSearch builds the search from a pre-resolved node list
// (callers compute it once per query from matching components + filter).
func NewNodeByEdgeAnnoSearch(nodes []annostore.NodeID, annoGen func(n annostore.NodeID) (annostore.Annotation, bool)) *NodeByEdgeAnnoSearch {
	return &NodeByEdgeAnnoSearch{nodes: nodes, gen: annoGen}
}

func (s *NodeByEdgeAnnoSearch) Next() (Match, bool) {
	for s.pos < len(s.nodes) {
		n := s.nodes[s.pos]
		s.pos++
		if anno, ok := s.gen(n); ok {
			return Match{Node: n, Anno: anno}, true
		}
	}
	return Match{}, false
}

func (s *NodeByEdgeAnnoSearch) Reset()               { s.pos = 0 }
func (s *NodeByEdgeAnnoSearch) GuessMaxCount() int64 { return int64(len(s.nodes)) }
func (s *NodeByEdgeAnnoSearch) Describe() string     { return "NodeByEdgeAnnoSearch" }

// ConstAnnoWrapper replaces each emitted annotation with a fixed one, so
// joins can compare node identity regardless of which annotation a node
// search happened to match on (spec §4.7).
type ConstAnnoWrapper struct {
	inner Search
	anno  annostore.Annotation
}

// NewConstAnnoWrapper wraps inner, substituting anno on every Match.
func NewConstAnnoWrapper(inner Search, anno annostore.Annotation) *ConstAnnoWrapper {
	return &ConstAnnoWrapper{inner: inner, anno: anno}
}

func (w *ConstAnnoWrapper) Next() (Match, bool) {
	m, ok := w.inner.Next()
	if !ok {
		return Match{}, false
	}
	return Match{Node: m.Node, Anno: w.anno}, true
}

func (w *ConstAnnoWrapper) Reset()               { w.inner.Reset() }
func (w *ConstAnnoWrapper) GuessMaxCount() int64 { return w.inner.GuessMaxCount() }
func (w *ConstAnnoWrapper) Describe() string     { return "ConstAnnoWrapper(" + w.inner.Describe() + ")" }

// collectAll drains a Search into a slice and resets it, used by join
// strategies that need random access (NestedLoop's inner reset, Seed's
// candidate intersection).
func collectAll(s Search) []Match {
	s.Reset()
	var out []Match
	for {
		m, ok := s.Next()
		if !ok {
			break
		}
		out = append(out, m)
	}
	s.Reset()
	return out
}

// IsToken reports whether node is a token (spec §4.8): carries annis::tok
// and has no outgoing edge in any Coverage component of c.
func IsToken(c *corpus.Corpus, node annostore.NodeID) bool {
	var coverageComponents []component.Component
	for _, comp := range c.Components() {
		if comp.Type == component.Coverage {
			coverageComponents = append(coverageComponents, comp)
		}
	}
	return c.IsToken(node, coverageComponents)
}
