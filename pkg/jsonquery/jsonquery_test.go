package jsonquery

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T) *corpus.Corpus {
	t.Helper()
	c := corpus.New()
	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").AddNodeLabel("c/d#t1", "default_ns", "pos", "N")
	gu.AddNode("c/d#t2").AddNodeLabel("c/d#t2", "default_ns", "pos", "V")
	gu.AddEdge("c/d#t1", "c/d#t2", corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"})
	c.Update(gu)
	return c
}

func TestParseRoundTripsDocument(t *testing.T) {
	raw := []byte(`{"alternatives":[{"nodes":[{"ns":"default_ns","name":"pos"}],"joins":[]}]}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, doc.Alternatives, 1)
	assert.Equal(t, "pos", doc.Alternatives[0].Nodes[0].Name)
}

func TestCompileSingleNodeQuery(t *testing.T) {
	c := buildChain(t)
	doc := &Document{Alternatives: []Alternative{{
		Nodes: []Node{{Ns: "default_ns", Name: "pos", Value: "N"}},
	}}}

	plans, err := Compile(c, doc)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	tuples := query.NewExecutor(plans[0]).Run()
	assert.Len(t, tuples, 1)
}

func TestCompilePrecedenceJoin(t *testing.T) {
	c := buildChain(t)
	doc := &Document{Alternatives: []Alternative{{
		Nodes: []Node{
			{Ns: "default_ns", Name: "pos"},
			{Ns: "default_ns", Name: "pos"},
		},
		Joins: []Join{{Operator: "Precedence", Left: 0, Right: 1, MinDist: 1, MaxDist: 1}},
	}}}

	plans, err := Compile(c, doc)
	require.NoError(t, err)

	tuples := query.NewExecutor(plans[0]).Run()
	require.Len(t, tuples, 1)
}

func TestCompileRejectsUnknownOperator(t *testing.T) {
	c := buildChain(t)
	doc := &Document{Alternatives: []Alternative{{
		Nodes: []Node{{Name: "pos"}, {Name: "pos"}},
		Joins: []Join{{Operator: "Bogus", Left: 0, Right: 1}},
	}}}

	_, err := Compile(c, doc)
	assert.Error(t, err)
}
