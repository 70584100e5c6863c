// Package jsonquery implements the external JSON query surface of
// spec.md §4.11: {alternatives: [{nodes: [...], joins: [...]}]}, parsed
// with encoding/json only (no parser-combinator dependency -- the
// document shape is a flat, fully-typed tree, not a grammar) and compiled
// into one pkg/query.Plan per alternative.
package jsonquery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/query"
)

// TextMatching selects how a node's Value is compared (spec §4.11).
type TextMatching string

const (
	MatchExact TextMatching = "EXACT"
	MatchRegex TextMatching = "REGEX"
)

// Document is the top-level JSON query body.
type Document struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one disjunct: a set of nodes and the joins binding them.
type Alternative struct {
	Nodes []Node `json:"nodes"`
	Joins []Join `json:"joins"`
}

// Node is one query-node filter.
type Node struct {
	Ns            string       `json:"ns,omitempty"`
	Name          string       `json:"name,omitempty"`
	Value         string       `json:"value,omitempty"`
	TextMatching  TextMatching `json:"textMatching,omitempty"`
	AnyAnnotation bool         `json:"anyAnnotation,omitempty"`
}

// Join is one operator binding between two node indices.
type Join struct {
	Operator   string  `json:"operator"`
	Left       int     `json:"left"`
	Right      int     `json:"right"`
	Layer      string  `json:"layer,omitempty"`
	Name       string  `json:"name,omitempty"`
	MinDist    uint32  `json:"minDistance,omitempty"`
	MaxDist    uint32  `json:"maxDistance,omitempty"`
	EdgeAnnoNs string  `json:"edgeAnnoNs,omitempty"`
	EdgeAnnoNm string  `json:"edgeAnnoName,omitempty"`
	EdgeAnnoVl *string `json:"edgeAnnoValue,omitempty"`
}

// Parse decodes a JSON query document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jsonquery: parse: %w", err)
	}
	return &doc, nil
}

// Compile builds one pkg/query.Plan per alternative against c, ready for
// query.RunAlternatives.
func Compile(c *corpus.Corpus, doc *Document) ([]*query.Plan, error) {
	plans := make([]*query.Plan, 0, len(doc.Alternatives))
	for i, alt := range doc.Alternatives {
		plan, err := compileAlternative(c, alt)
		if err != nil {
			return nil, fmt.Errorf("jsonquery: alternative %d: %w", i, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func compileAlternative(c *corpus.Corpus, alt Alternative) (*query.Plan, error) {
	nodes := make([]query.NodeSpec, len(alt.Nodes))
	for i, n := range alt.Nodes {
		s, err := compileNodeSearch(c, n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes[i] = query.NodeSpec{Name: fmt.Sprintf("n%d", i), Search: s}
	}

	edges := make([]query.EdgeSpec, len(alt.Joins))
	for i, j := range alt.Joins {
		if j.Left < 0 || j.Left >= len(nodes) || j.Right < 0 || j.Right >= len(nodes) {
			return nil, fmt.Errorf("join %d: node index out of range", i)
		}
		op, err := compileOperator(c, j)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		edges[i] = query.EdgeSpec{Left: j.Left, Right: j.Right, Op: op}
	}

	// BuildPlan's own doc comment asks callers wanting cost-based
	// reordering to sort edges by operator selectivity first; a more
	// selective (lower Selectivity()) operator joined earlier prunes the
	// search space before less selective ones run, per spec §4.9/§9
	// ("selectivity estimates ... only that planning prefers lower
	// estimates"). The sort is stable so joins with equal selectivity keep
	// the order the caller supplied them in.
	sort.SliceStable(edges, func(i, k int) bool {
		return edges[i].Op.Selectivity() < edges[k].Op.Selectivity()
	})

	return query.BuildPlan(nodes, edges)
}

func compileNodeSearch(c *corpus.Corpus, n Node) (query.Search, error) {
	if n.Name == "" {
		return nil, fmt.Errorf("node filter requires a name")
	}
	key := annostore.Key{Ns: c.Pool.Intern(n.Ns), Name: c.Pool.Intern(n.Name)}

	var s query.Search
	switch {
	case n.Value == "":
		s = query.NewExactKeySearch(c.Annos, key)
	case n.TextMatching == MatchRegex:
		s = query.NewRegexSearch(c.Pool, c.Annos, key, n.Value)
	default:
		s = query.NewExactValueSearch(c.Annos, key, c.Pool.Intern(n.Value))
	}

	if n.AnyAnnotation {
		s = query.NewConstAnnoWrapper(s, annostore.Annotation{})
	}
	return s, nil
}

func compileOperator(c *corpus.Corpus, j Join) (query.Operator, error) {
	var filter *query.EdgeAnnoFilter
	if j.EdgeAnnoNm != "" {
		filter = &query.EdgeAnnoFilter{
			Key: annostore.Key{Ns: c.Pool.Intern(j.EdgeAnnoNs), Name: c.Pool.Intern(j.EdgeAnnoNm)},
		}
		if j.EdgeAnnoVl != nil {
			filter.HasVal = true
			filter.Value = c.Pool.Intern(*j.EdgeAnnoVl)
		}
	}

	min, max := j.MinDist, j.MaxDist
	if max == 0 {
		min, max = 1, 1
	}

	switch j.Operator {
	case "Dominance", ">":
		return query.NewDominanceOperator(c, j.Layer, j.Name, j.Name != "", min, max, filter), nil
	case "Pointing", "->":
		return query.NewPointingOperator(c, j.Layer, j.Name, j.Name != "", min, max, filter), nil
	case "Precedence", ".":
		return query.NewPrecedenceOperator(c, j.Layer, min, max), nil
	case "PartOfSubCorpus", "@":
		return query.NewPartOfSubCorpusOperator(c, j.Layer, min, max), nil
	case "Overlap", "_o_":
		return query.NewOverlapOperator(c), nil
	case "Inclusion", "_i_":
		return query.NewInclusionOperator(c), nil
	case "IdenticalCoverage", "_=_":
		return query.NewIdenticalCoverageOperator(c), nil
	case "IdenticalNode", "_ident_":
		return query.NewIdenticalNodeOperator(), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", j.Operator)
	}
}

// ValidateRegex pre-checks a pattern before building a query; the Search
// itself already tolerates an invalid pattern by matching nothing (spec
// §4.1), but callers building an interactive query editor want an error
// immediately.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile(pattern)
	return err
}
