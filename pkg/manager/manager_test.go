package manager

import (
	"testing"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/config"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestImportThenFindRoundTrips(t *testing.T) {
	m := New(testConfig(t))
	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").AddNodeLabel("c/d#t1", "annis", "tok", "hello")

	require.NoError(t, m.ImportCorpus("c", gu))

	var found bool
	err := m.Find("c", func(cp *corpus.Corpus) error {
		_, found = cp.NodeByPath("c/d#t1")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestListIncludesOnDiskAndCachedCorpora(t *testing.T) {
	m := New(testConfig(t))
	require.NoError(t, m.ImportCorpus("alpha", corpus.GraphUpdate{}))
	require.NoError(t, m.ImportCorpus("beta", corpus.GraphUpdate{}))

	names, err := m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestApplyUpdatePersistsUpdateLog(t *testing.T) {
	m := New(testConfig(t))
	require.NoError(t, m.ImportCorpus("c", corpus.GraphUpdate{}))

	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1")
	require.NoError(t, m.ApplyUpdate("c", gu))

	var found bool
	err := m.Find("c", func(cp *corpus.Corpus) error {
		_, found = cp.NodeByPath("c/d#t1")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDeleteCorpusRemovesFromCacheAndDisk(t *testing.T) {
	m := New(testConfig(t))
	require.NoError(t, m.ImportCorpus("c", corpus.GraphUpdate{}))
	_, err := m.Count("c")
	require.NoError(t, err)

	require.NoError(t, m.DeleteCorpus("c"))

	names, err := m.List()
	require.NoError(t, err)
	assert.NotContains(t, names, "c")
}

func TestEvictionSkipsMostRecentlyLoaded(t *testing.T) {
	m := New(testConfig(t))
	m.cfg.Cache.MaxAllowedCacheSize = 1 // force eviction pressure

	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").AddEdge("c/d#t1", "c/d#t1", corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"})
	require.NoError(t, m.ImportCorpus("older", gu))
	require.NoError(t, m.ImportCorpus("newer", gu))

	// Touch both so they are LOADED, "newer" last so it is exempt.
	require.NoError(t, m.Find("older", func(*corpus.Corpus) error { return nil }))
	require.NoError(t, m.Find("newer", func(*corpus.Corpus) error { return nil }))

	_, evicted := m.Evict()
	assert.NotContains(t, evicted, "newer")
}

func TestRequireAdminAllowsWhenGateDisabled(t *testing.T) {
	m := New(testConfig(t))
	assert.NoError(t, m.RequireAdmin("anything"))
}

func TestRequireAdminRejectsWrongToken(t *testing.T) {
	cfg := testConfig(t)
	hash, err := HashAdminToken("secret")
	require.NoError(t, err)
	cfg.Auth.AdminTokenHash = hash

	m := New(cfg)
	assert.NoError(t, m.RequireAdmin("secret"))
	assert.ErrorIs(t, m.RequireAdmin("wrong"), ErrUnauthorized)
}

func TestInfoReportsLoadStatus(t *testing.T) {
	m := New(testConfig(t))
	require.NoError(t, m.ImportCorpus("c", corpus.GraphUpdate{}))

	info := m.Info("c")
	assert.Equal(t, loader.StatusNotInCache, info.LoadStatus)

	require.NoError(t, m.Find("c", func(*corpus.Corpus) error { return nil }))
	info = m.Info("c")
	assert.Equal(t, loader.StatusLoaded, info.LoadStatus)
}

func TestPageCacheRemembersSizeAcrossEviction(t *testing.T) {
	cfg := testConfig(t)
	pages, err := OpenPageCache(t.TempDir())
	require.NoError(t, err)
	defer pages.Close()

	m := New(cfg).WithPageCache(pages)
	var gu corpus.GraphUpdate
	gu.AddNode("c/d#t1").AddNodeLabel("c/d#t1", "annis", "tok", "hi")
	require.NoError(t, m.ImportCorpus("c", gu))
	require.NoError(t, m.Find("c", func(*corpus.Corpus) error { return nil }))

	m.cacheMu.Lock()
	l := m.loaders["c"]
	m.cacheMu.Unlock()
	require.True(t, l.TryLock())
	l.Unload()
	l.Unlock()

	info := m.Info("c")
	assert.Equal(t, loader.StatusNotInCache, info.LoadStatus)
	assert.Greater(t, info.EstimatedSize, int64(0))
}
