package query

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain builds a 3-token ordering chain t1 -> t2 -> t3, each token
// annotated pos = the given tags in order, plus a span node covering all
// three tokens via Coverage/InverseCoverage and LeftToken/RightToken.
func buildChain(t *testing.T, tags ...string) (*corpus.Corpus, []annostore.NodeID) {
	t.Helper()
	c := corpus.New()
	var gu corpus.GraphUpdate
	paths := make([]string, len(tags))
	for i, tag := range tags {
		p := "c/d#tok" + string(rune('1'+i))
		paths[i] = p
		gu.AddNode(p).
			AddNodeLabel(p, "annis", "tok", tag).
			AddNodeLabel(p, "default_ns", "pos", tag)
	}
	for i := 0; i+1 < len(paths); i++ {
		gu.AddEdge(paths[i], paths[i+1], corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"})
	}
	c.Update(gu)

	ids := make([]annostore.NodeID, len(paths))
	for i, p := range paths {
		id, ok := c.NodeByPath(p)
		require.True(t, ok)
		ids[i] = id
	}
	return c, ids
}

func internedKey(c *corpus.Corpus, ns, name string) annostore.Key {
	return annostore.Key{Ns: c.Pool.Intern(ns), Name: c.Pool.Intern(name)}
}

func TestExactValueSearchFindsAnnotatedNode(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	key := internedKey(c, "default_ns", "pos")
	value := c.Pool.Intern("sat")

	s := NewExactValueSearch(c.Annos, key, value)
	matches := collectAll(s)
	require.Len(t, matches, 1)
	assert.Equal(t, ids[1], matches[0].Node)
}

func TestExactKeySearchFindsEveryTaggedNode(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	key := internedKey(c, "default_ns", "pos")

	s := NewExactKeySearch(c.Annos, key)
	matches := collectAll(s)
	require.Len(t, matches, 3)
	var got []annostore.NodeID
	for _, m := range matches {
		got = append(got, m.Node)
	}
	assert.ElementsMatch(t, ids, got)
}

func TestRegexSearchMatchesPattern(t *testing.T) {
	c, ids := buildChain(t, "cat", "car", "dog")
	key := internedKey(c, "default_ns", "pos")

	s := NewRegexSearch(c.Pool, c.Annos, key, "^ca.$")
	matches := collectAll(s)
	require.Len(t, matches, 2)
	var got []annostore.NodeID
	for _, m := range matches {
		got = append(got, m.Node)
	}
	assert.ElementsMatch(t, []annostore.NodeID{ids[0], ids[1]}, got)
}

func TestPrecedenceOperatorRetrievesDownstreamTokens(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	op := NewPrecedenceOperator(c, "default", 1, 2)

	matches := collectAll(op.RetrieveMatches(Match{Node: ids[0]}))
	var got []annostore.NodeID
	for _, m := range matches {
		got = append(got, m.Node)
	}
	assert.ElementsMatch(t, []annostore.NodeID{ids[1], ids[2]}, got)

	assert.True(t, op.Filter(Match{Node: ids[0]}, Match{Node: ids[1]}))
	assert.False(t, op.Filter(Match{Node: ids[2]}, Match{Node: ids[0]}))
}

func TestIdenticalNodeOperatorOnlyAcceptsSameNode(t *testing.T) {
	_, ids := buildChain(t, "cat", "sat")
	op := NewIdenticalNodeOperator()
	assert.True(t, op.Filter(Match{Node: ids[0]}, Match{Node: ids[0]}))
	assert.False(t, op.Filter(Match{Node: ids[0]}, Match{Node: ids[1]}))
}

func TestEdgeOperatorSelectivityStaysInUnitRange(t *testing.T) {
	c, _ := buildChain(t, "cat", "sat", "mat", "ran", "far")
	op := NewPrecedenceOperator(c, "default", 1, 2)

	// Before any statistics recompute, the storage falls back to the
	// original's conservative default selectivity.
	selBeforeStats := op.Selectivity()
	assert.GreaterOrEqual(t, selBeforeStats, 0.0)
	assert.LessOrEqual(t, selBeforeStats, 1.0)

	storage, err := c.Storage(component.New(component.Ordering, "default", ""))
	require.NoError(t, err)
	storage.CalculateStatistics()

	selAfterStats := op.Selectivity()
	assert.GreaterOrEqual(t, selAfterStats, 0.0)
	assert.LessOrEqual(t, selAfterStats, 1.0)
	// reachable tokens (up to 2 away) out of 5 corpus nodes must be a
	// small fraction, not the un-normalized reachable count itself.
	assert.Less(t, selAfterStats, 1.0)
}

func TestEdgeOperatorSelectivityIsZeroWithNoMatchingComponent(t *testing.T) {
	c, _ := buildChain(t, "cat", "sat")
	op := NewDominanceOperator(c, "nonexistent-layer", "", false, 1, 1, nil)
	assert.Equal(t, 0.0, op.Selectivity())
}

func TestNestedLoopEmitsOnlyFilterAcceptedPairs(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	key := internedKey(c, "default_ns", "pos")
	left := NewExactKeySearch(c.Annos, key)
	right := NewExactKeySearch(c.Annos, key)
	op := NewPrecedenceOperator(c, "default", 1, 1)

	j := NewNestedLoop(left, right, op)
	var pairs [][2]annostore.NodeID
	for {
		l, r, ok := j.Next()
		if !ok {
			break
		}
		pairs = append(pairs, [2]annostore.NodeID{l.Node, r.Node})
	}
	assert.ElementsMatch(t, [][2]annostore.NodeID{{ids[0], ids[1]}, {ids[1], ids[2]}}, pairs)
}

func TestBuildPlanRejectsDisconnectedQueryGraph(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat", "dog")
	key := internedKey(c, "default_ns", "pos")

	nodes := []NodeSpec{
		{Name: "n0", Search: NewExactKeySearch(c.Annos, key)},
		{Name: "n1", Search: NewExactKeySearch(c.Annos, key)},
		{Name: "n2", Search: NewExactKeySearch(c.Annos, key)},
	}
	op := NewPrecedenceOperator(c, "default", 1, 1)
	edges := []EdgeSpec{{Left: 0, Right: 1, Op: op}} // node 2 left unjoined

	_, err := BuildPlan(nodes, edges)
	require.Error(t, err)
	var malformed *ErrMalformedQuery
	assert.ErrorAs(t, err, &malformed)
	_ = ids
}

func TestExecutorRunsTwoNodePrecedenceQuery(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	key := internedKey(c, "default_ns", "pos")

	nodes := []NodeSpec{
		{Name: "n0", Search: NewExactKeySearch(c.Annos, key)},
		{Name: "n1", Search: NewExactKeySearch(c.Annos, key)},
	}
	op := NewPrecedenceOperator(c, "default", 1, 1)
	edges := []EdgeSpec{{Left: 0, Right: 1, Op: op}}

	plan, err := BuildPlan(nodes, edges)
	require.NoError(t, err)

	tuples := NewExecutor(plan).Run()
	var pairs [][2]annostore.NodeID
	for _, tup := range tuples {
		pairs = append(pairs, [2]annostore.NodeID{tup[0].Node, tup[1].Node})
	}
	assert.ElementsMatch(t, [][2]annostore.NodeID{{ids[0], ids[1]}, {ids[1], ids[2]}}, pairs)
}

func TestExecutorThreeNodeChainReconnectsThirdEdgeAsFilter(t *testing.T) {
	c, ids := buildChain(t, "cat", "sat", "mat")
	key := internedKey(c, "default_ns", "pos")

	nodes := []NodeSpec{
		{Name: "n0", Search: NewExactKeySearch(c.Annos, key)},
		{Name: "n1", Search: NewExactKeySearch(c.Annos, key)},
		{Name: "n2", Search: NewExactKeySearch(c.Annos, key)},
	}
	prec1 := NewPrecedenceOperator(c, "default", 1, 1)
	prec2 := NewPrecedenceOperator(c, "default", 1, 1)
	prec02 := NewPrecedenceOperator(c, "default", 2, 2)
	edges := []EdgeSpec{
		{Left: 0, Right: 1, Op: prec1},
		{Left: 1, Right: 2, Op: prec2},
		{Left: 0, Right: 2, Op: prec02}, // reconnect, should become a filter step
	}

	plan, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Nil(t, plan.Steps[0].Filter)
	assert.Nil(t, plan.Steps[1].Filter)
	assert.NotNil(t, plan.Steps[2].Filter)

	tuples := NewExecutor(plan).Run()
	require.Len(t, tuples, 1)
	assert.Equal(t, ids[0], tuples[0][0].Node)
	assert.Equal(t, ids[1], tuples[0][1].Node)
	assert.Equal(t, ids[2], tuples[0][2].Node)
}
