package corpus

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordering() ComponentRef {
	return ComponentRef{Type: string(component.Ordering), Layer: "default"}
}

func TestAddNodeThenLabel(t *testing.T) {
	c := New()
	var gu GraphUpdate
	gu.AddNode("corpus/doc#tok1").
		AddNodeLabel("corpus/doc#tok1", "default_ns", "pos", "N")
	c.Update(gu)

	id, ok := c.NodeByPath("corpus/doc#tok1")
	require.True(t, ok)

	key := c.internKey("default_ns", "pos")
	value, ok := c.Annos.Get(id, key)
	require.True(t, ok)
	s, _ := c.Pool.Lookup(value)
	assert.Equal(t, "N", s)
}

func TestAddNodeIsIdempotentOnDuplicatePath(t *testing.T) {
	c := New()
	var gu GraphUpdate
	gu.AddNode("corpus/doc#n")
	gu.AddNode("corpus/doc#n")
	c.Update(gu)

	assert.Equal(t, annoStoreNodeCount(c), int64(1))
}

func annoStoreNodeCount(c *Corpus) int64 {
	return c.Annos.NodeCount()
}

func TestAddEdgeCreatesComponentLazily(t *testing.T) {
	c := New()
	var gu GraphUpdate
	gu.AddNode("c/d#t1")
	gu.AddNode("c/d#t2")
	gu.AddEdge("c/d#t1", "c/d#t2", ordering())
	c.Update(gu)

	t1, _ := c.NodeByPath("c/d#t1")
	t2, _ := c.NodeByPath("c/d#t2")

	comp := toComponent(ordering())
	storage, err := c.Storage(comp)
	require.NoError(t, err)
	assert.True(t, storage.IsConnected(graphstorage.Edge{Source: t1, Target: t2}, 1, 1))
}

func TestDeleteNodeRemovesAnnotationsAndEdges(t *testing.T) {
	c := New()
	var gu GraphUpdate
	gu.AddNode("c/d#t1")
	gu.AddNode("c/d#t2")
	gu.AddEdge("c/d#t1", "c/d#t2", ordering())
	gu.AddNodeLabel("c/d#t1", "default_ns", "pos", "N")
	c.Update(gu)

	var gu2 GraphUpdate
	gu2.DeleteNode("c/d#t1")
	c.Update(gu2)

	_, ok := c.NodeByPath("c/d#t1")
	assert.False(t, ok)

	comp := toComponent(ordering())
	storage, err := c.Storage(comp)
	require.NoError(t, err)
	t2, _ := c.NodeByPath("c/d#t2")
	assert.Empty(t, storage.Incoming(t2))
}

func TestWatermarkStopsUnratifiedEvents(t *testing.T) {
	c := New()
	gu := GraphUpdate{}
	gu.AddNode("c/d#t1")
	gu.AddNode("c/d#t2")
	gu.Watermark = 1 // only the first AddNode is durable
	c.Update(gu)

	_, ok1 := c.NodeByPath("c/d#t1")
	_, ok2 := c.NodeByPath("c/d#t2")
	assert.True(t, ok1)
	assert.False(t, ok2)
}
