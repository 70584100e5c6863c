package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edgeOf(source, target graphstorage.NodeID) graphstorage.Edge {
	return graphstorage.Edge{Source: source, Target: target}
}

func buildSampleCorpus() *corpus.Corpus {
	c := corpus.New()
	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").
		AddNode("c/d#t2").
		AddNodeLabel("c/d#t1", "annis", "tok", "a").
		AddNodeLabel("c/d#t2", "annis", "tok", "b").
		AddEdge("c/d#t1", "c/d#t2", corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"})
	c.Update(gu)
	return c
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := buildSampleCorpus()
	require.NoError(t, Save(c, dir))

	loaded, err := Load(dir, true)
	require.NoError(t, err)

	id1, ok := loaded.NodeByPath("c/d#t1")
	require.True(t, ok)
	id2, ok := loaded.NodeByPath("c/d#t2")
	require.True(t, ok)

	comp := component.New(component.Ordering, "default", "")
	storage, err := loaded.Storage(comp)
	require.NoError(t, err)
	assert.True(t, storage.IsConnected(edgeOf(id1, id2), 1, 1))
}

func TestLoadPrefersBackupDirectory(t *testing.T) {
	dir := t.TempDir()
	c := buildSampleCorpus()
	require.NoError(t, Save(c, dir))

	require.NoError(t, RotateToBackup(dir))
	_, err := os.Stat(filepath.Join(dir, dirCurrent))
	assert.Error(t, err)

	loaded, err := Load(dir, true)
	require.NoError(t, err)
	_, ok := loaded.NodeByPath("c/d#t1")
	assert.True(t, ok)

	// Load() should have rotated backup back into current and cleaned up.
	_, err = os.Stat(filepath.Join(dir, dirCurrent, nodesFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, dirBackup))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateLogReplaysOnLoad(t *testing.T) {
	dir := t.TempDir()
	c := buildSampleCorpus()
	require.NoError(t, Save(c, dir))

	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t3")
	require.NoError(t, WriteUpdateLog(dir, gu))

	loaded, err := Load(dir, true)
	require.NoError(t, err)
	_, ok := loaded.NodeByPath("c/d#t3")
	assert.True(t, ok)
}
