package loader

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderStartsNotInCache(t *testing.T) {
	l := New("mycorpus", t.TempDir())
	assert.Equal(t, StatusNotInCache, l.Status())
}

func TestLoaderLazyLoadsOnFirstTouch(t *testing.T) {
	dir := t.TempDir()
	c := corpus.New()
	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").
		AddEdge("c/d#t1", "c/d#t1", corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"})
	c.Update(gu)
	require.NoError(t, snapshot.Save(c, dir))

	l := New("mycorpus", dir)
	assert.Equal(t, StatusNotInCache, l.Status())

	loaded, err := l.Corpus()
	require.NoError(t, err)
	assert.Equal(t, StatusLoaded, l.Status())

	_, ok := loaded.NodeByPath("c/d#t1")
	assert.True(t, ok)
}

func TestLoaderUnloadReturnsToNotInCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, snapshot.Save(corpus.New(), dir))

	l := New("mycorpus", dir)
	_, err := l.Corpus()
	require.NoError(t, err)
	require.Equal(t, StatusLoaded, l.Status())

	l.Lock()
	l.Unload()
	l.Unlock()

	assert.Equal(t, StatusNotInCache, l.Status())
	assert.Equal(t, int64(0), l.EstimateMemory())
}
