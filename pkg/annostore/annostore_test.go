package annostore

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/strpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(p *strpool.Pool, ns, name string) Key {
	return Key{Ns: p.Intern(ns), Name: p.Intern(name)}
}

func TestUpsertAtMostOneValuePerKey(t *testing.T) {
	p := strpool.New()
	s := New()
	k := key(p, "", "pos")

	s.Upsert(1, k, p.Intern("N"))
	s.Upsert(1, k, p.Intern("V"))

	v, ok := s.Get(1, k)
	require.True(t, ok)
	assert.Equal(t, p.Intern("V"), v)
	assert.Len(t, s.AllForNode(1), 1)
}

func TestDeleteNodeLabel(t *testing.T) {
	p := strpool.New()
	s := New()
	k := key(p, "", "pos")
	s.Upsert(1, k, p.Intern("N"))

	s.Delete(1, k)

	_, ok := s.Get(1, k)
	assert.False(t, ok)
	assert.Empty(t, s.NodesByKey(k))
}

func TestNodesByKeyValue(t *testing.T) {
	p := strpool.New()
	s := New()
	k := key(p, "", "pos")
	s.Upsert(1, k, p.Intern("N"))
	s.Upsert(2, k, p.Intern("N"))
	s.Upsert(3, k, p.Intern("V"))

	nodes := s.NodesByKeyValue(k, p.Intern("N"))
	assert.ElementsMatch(t, []NodeID{1, 2}, nodes)
}

func TestDeleteNode(t *testing.T) {
	p := strpool.New()
	s := New()
	k1 := key(p, "", "pos")
	k2 := key(p, "", "lemma")
	s.Upsert(1, k1, p.Intern("N"))
	s.Upsert(1, k2, p.Intern("dog"))

	s.DeleteNode(1)

	assert.Empty(t, s.AllForNode(1))
	assert.Empty(t, s.NodesByKey(k1))
	assert.Empty(t, s.NodesByKey(k2))
}

func TestBulkUpsertSortsInternally(t *testing.T) {
	p := strpool.New()
	s := New()
	k := key(p, "", "pos")
	entries := []Entry{
		{Node: 3, Anno: Annotation{Key: k, Value: p.Intern("X")}},
		{Node: 1, Anno: Annotation{Key: k, Value: p.Intern("N")}},
		{Node: 2, Anno: Annotation{Key: k, Value: p.Intern("V")}},
	}
	s.BulkUpsert(entries)

	for _, e := range entries {
		v, ok := s.Get(e.Node, k)
		require.True(t, ok)
		assert.Equal(t, e.Anno.Value, v)
	}
}

func TestGuessMaxCount(t *testing.T) {
	p := strpool.New()
	s := New()
	k := key(p, "", "pos")
	s.Upsert(1, k, p.Intern("N"))
	s.Upsert(2, k, p.Intern("N"))
	s.Upsert(3, k, p.Intern("V"))

	t.Run("before_recompute_falls_back_to_key_count", func(t *testing.T) {
		assert.Equal(t, int64(3), s.GuessMaxCount(p, k, nil))
	})

	t.Run("after_recompute_sums_histogram", func(t *testing.T) {
		s.RecomputeStatistics()
		assert.Equal(t, int64(3), s.GuessMaxCount(p, k, nil))
	})
}
