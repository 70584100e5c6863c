package relannis

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

func storageEdge(source, target graphstorage.NodeID) graphstorage.Edge {
	return graphstorage.Edge{Source: source, Target: target}
}

func writeTab(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".tab"), []byte(content), 0o644))
}

func buildSampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeTab(t, dir, "corpus", []string{"1\tmycorpus"})
	writeTab(t, dir, "node", []string{
		"1\t1\t1\tdefault_ns\ttok\t0\t0\t0\tThe",
		"2\t1\t1\tdefault_ns\ttok\t1\t1\t1\tcat",
		"3\t1\t1\tdefault_ns\tspan\t0\t1\tNULL\tThe cat",
	})
	writeTab(t, dir, "node_annotation", []string{
		"1\tdefault_ns\tpos\tDET",
		"2\tdefault_ns\tpos\tN",
		"3\tdefault_ns\tcat\tNP",
	})
	writeTab(t, dir, "component", []string{
		"1\tc\tdefault_ns\tNULL",
		"2\td\tdefault_ns\tconst",
	})
	writeTab(t, dir, "rank", []string{
		"1\t0\t0\t1\t1\t4\tNULL",
		"2\t0\t0\t2\t1\t4\tNULL",
		"3\t0\t0\t3\t2\tNULL\tNULL",
		"4\t0\t0\t3\t1\tNULL\tNULL",
	})
	writeTab(t, dir, "edge_annotation", []string{})

	return dir
}

func TestImportBuildsTokensAndOrdering(t *testing.T) {
	dir := buildSampleDir(t)
	gu, err := Import(dir)
	require.NoError(t, err)

	c := corpus.New()
	c.Update(gu)

	tok1, ok := c.NodeByPath("mycorpus#n1")
	require.True(t, ok)
	tok2, ok := c.NodeByPath("mycorpus#n2")
	require.True(t, ok)

	comp := component.New(component.Ordering, "default", "")
	storage, err := c.Storage(comp)
	require.NoError(t, err)
	assert.True(t, storage.IsConnected(storageEdge(tok1, tok2), 1, 1))
}

func TestImportBuildsCoverage(t *testing.T) {
	dir := buildSampleDir(t)
	gu, err := Import(dir)
	require.NoError(t, err)

	c := corpus.New()
	c.Update(gu)

	span, ok := c.NodeByPath("mycorpus#n3")
	require.True(t, ok)
	tok1, ok := c.NodeByPath("mycorpus#n1")
	require.True(t, ok)

	comp := component.New(component.Coverage, "default_ns", "")
	storage, err := c.Storage(comp)
	require.NoError(t, err)
	assert.True(t, storage.IsConnected(storageEdge(span, tok1), 1, 1))
}
