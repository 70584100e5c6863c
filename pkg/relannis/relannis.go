// Package relannis imports a relANNIS corpus directory into a
// corpus.GraphUpdate, the tab-separated export format used by the ANNIS
// corpus linguistics platform this system's query language descends from
// (spec.md §6, grounded on thomaskrause/annis4's
// RelANNISLoader::loadRelANNIS entry point referenced in
// corpusstoragemanager.cpp; the table schema itself follows relANNIS's
// well-documented columnar layout since the loader source was not part of
// the retrieved original_source/ tree).
//
// A relANNIS directory holds one file per table, either foo.tab
// (relANNIS <= 3.2) or foo.annis (relANNIS >= 3.3). foo.annis is read when
// it exists, otherwise foo.tab; an "annis.version" marker line is skipped
// in either and plays no part in choosing the file. Every file is
// tab-separated with no header row.
package relannis

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
)

const nullValue = "NULL"

// node is one row of node.tab / node.annis.
type node struct {
	ID         int64
	TextRef    int64
	CorpusRef  int64
	Layer      string
	Name       string
	Left       int64
	Right      int64
	TokenIndex *int64 // nil when the node is not a token
	Span       string
}

type nodeAnnotation struct {
	NodeRef int64
	NS      string
	Name    string
	Value   string
}

type componentRow struct {
	ID    int64
	Type  string // "d" Dominance, "p" Pointing, "c" Coverage, "o" Ordering
	Layer string
	Name  string
}

type rank struct {
	ID           int64
	NodeRef      int64
	ComponentRef int64
	Parent       *int64
}

type edgeAnnotation struct {
	RankRef int64
	NS      string
	Name    string
	Value   string
}

type corpusRow struct {
	ID   int64
	Name string
}

// Import reads the relANNIS directory at dir and returns a GraphUpdate
// ready for corpus.Corpus.Update.
func Import(dir string) (corpus.GraphUpdate, error) {
	var gu corpus.GraphUpdate

	corpora, err := readCorpusTab(dir)
	if err != nil {
		return gu, err
	}
	nodes, err := readNodeTab(dir)
	if err != nil {
		return gu, err
	}
	nodeAnnos, err := readNodeAnnotationTab(dir)
	if err != nil {
		return gu, err
	}
	components, err := readComponentTab(dir)
	if err != nil {
		return gu, err
	}
	ranks, err := readRankTab(dir)
	if err != nil {
		return gu, err
	}
	edgeAnnos, err := readEdgeAnnotationTab(dir)
	if err != nil {
		return gu, err
	}

	paths := make(map[int64]string, len(nodes))
	for _, n := range nodes {
		corpusName := corpora[n.CorpusRef].Name
		path := fmt.Sprintf("%s#n%d", corpusName, n.ID)
		paths[n.ID] = path
		gu.AddNode(path)
		if n.TokenIndex != nil {
			gu.AddNodeLabel(path, "annis", "tok", n.Span)
		}
	}

	for _, a := range nodeAnnos {
		path, ok := paths[a.NodeRef]
		if !ok {
			continue
		}
		gu.AddNodeLabel(path, a.NS, a.Name, a.Value)
	}

	addOrderingEdges(&gu, nodes, paths)
	addDominanceAndPointingEdges(&gu, nodes, components, ranks, edgeAnnos, paths)
	addCoverageEdges(&gu, nodes, components, ranks, paths)

	return gu, nil
}

// addOrderingEdges derives Ordering, LeftToken, and RightToken components
// from each text's token_index sequence (spec §6's supplemented relANNIS
// import: "derives ORDERING/LEFT_TOKEN/RIGHT_TOKEN/COVERAGE/
// INVERSE_COVERAGE components from token index and text-span columns").
func addOrderingEdges(gu *corpus.GraphUpdate, nodes []node, paths map[int64]string) {
	byText := make(map[int64][]node)
	for _, n := range nodes {
		if n.TokenIndex != nil {
			byText[n.TextRef] = append(byText[n.TextRef], n)
		}
	}
	for _, toks := range byText {
		sort.Slice(toks, func(i, j int) bool { return *toks[i].TokenIndex < *toks[j].TokenIndex })
		orderingRef := corpus.ComponentRef{Type: string(component.Ordering), Layer: "default"}
		leftRef := corpus.ComponentRef{Type: string(component.LeftToken), Layer: "default"}
		rightRef := corpus.ComponentRef{Type: string(component.RightToken), Layer: "default"}
		for i := 0; i+1 < len(toks); i++ {
			gu.AddEdge(paths[toks[i].ID], paths[toks[i+1].ID], orderingRef)
		}
		for _, n := range toks {
			gu.AddEdge(paths[n.ID], paths[n.ID], leftRef)
			gu.AddEdge(paths[n.ID], paths[n.ID], rightRef)
		}
	}
}

func addDominanceAndPointingEdges(gu *corpus.GraphUpdate, nodes []node, components map[int64]componentRow, ranks []rank, edgeAnnos []edgeAnnotation, paths map[int64]string) {
	annosByRank := make(map[int64][]edgeAnnotation)
	for _, a := range edgeAnnos {
		annosByRank[a.RankRef] = append(annosByRank[a.RankRef], a)
	}

	rankByID := make(map[int64]rank, len(ranks))
	for _, r := range ranks {
		rankByID[r.ID] = r
	}

	for _, r := range ranks {
		comp, ok := components[r.ComponentRef]
		if !ok || r.Parent == nil {
			continue
		}
		var compType component.Type
		switch comp.Type {
		case "d":
			compType = component.Dominance
		case "p":
			compType = component.Pointing
		default:
			continue
		}
		parent, ok := rankByID[*r.Parent]
		if !ok {
			continue
		}
		src, sOK := paths[parent.NodeRef]
		dst, dOK := paths[r.NodeRef]
		if !sOK || !dOK {
			continue
		}
		ref := corpus.ComponentRef{Type: string(compType), Layer: comp.Layer, Name: comp.Name}
		gu.AddEdge(src, dst, ref)
		for _, a := range annosByRank[r.ID] {
			gu.AddEdgeLabel(src, dst, ref, a.NS, a.Name, a.Value)
		}
	}
}

// addCoverageEdges adds Coverage (span -> token) and InverseCoverage
// (token -> span) edges for every rank row whose component is type "c"
// and whose target is a token.
func addCoverageEdges(gu *corpus.GraphUpdate, nodes []node, components map[int64]componentRow, ranks []rank, paths map[int64]string) {
	nodeByID := make(map[int64]node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}
	rankByID := make(map[int64]rank, len(ranks))
	for _, r := range ranks {
		rankByID[r.ID] = r
	}

	for _, r := range ranks {
		comp, ok := components[r.ComponentRef]
		if !ok || comp.Type != "c" || r.Parent == nil {
			continue
		}
		parent, ok := rankByID[*r.Parent]
		if !ok {
			continue
		}
		tok, ok := nodeByID[r.NodeRef]
		if !ok || tok.TokenIndex == nil {
			continue
		}
		span, dst := paths[parent.NodeRef], paths[r.NodeRef]
		if span == "" || dst == "" {
			continue
		}
		gu.AddEdge(span, dst, corpus.ComponentRef{Type: string(component.Coverage), Layer: comp.Layer})
		gu.AddEdge(dst, span, corpus.ComponentRef{Type: string(component.InverseCoverage), Layer: comp.Layer})
	}
}

func tabFile(dir, base string) (string, error) {
	for _, ext := range []string{".annis", ".tab"} {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("relannis: no %s.tab or %s.annis in %s", base, base, dir)
}

// scanTable opens base.tab or base.annis, skips the annis.version marker
// line if present, and calls fn for each remaining tab-separated row.
func scanTable(dir, base string, fn func(cols []string) error) error {
	path, err := tabFile(dir, base)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("relannis: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "annis.version") {
			continue
		}
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if err := fn(cols); err != nil {
			return fmt.Errorf("relannis: %s: %w", path, err)
		}
	}
	return sc.Err()
}

func parseInt(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseNullableInt(s string) (*int64, error) {
	if s == nullValue || s == "" {
		return nil, nil
	}
	n, err := parseInt(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func readCorpusTab(dir string) (map[int64]corpusRow, error) {
	out := make(map[int64]corpusRow)
	err := scanTable(dir, "corpus", func(cols []string) error {
		if len(cols) < 2 {
			return fmt.Errorf("short row")
		}
		id, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		out[id] = corpusRow{ID: id, Name: cols[1]}
		return nil
	})
	return out, err
}

func readNodeTab(dir string) ([]node, error) {
	var out []node
	err := scanTable(dir, "node", func(cols []string) error {
		if len(cols) < 9 {
			return fmt.Errorf("short row")
		}
		id, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		textRef, err := parseInt(cols[1])
		if err != nil {
			return err
		}
		corpusRef, err := parseInt(cols[2])
		if err != nil {
			return err
		}
		left, err := parseInt(cols[5])
		if err != nil {
			return err
		}
		right, err := parseInt(cols[6])
		if err != nil {
			return err
		}
		tokIdx, err := parseNullableInt(cols[7])
		if err != nil {
			return err
		}
		out = append(out, node{
			ID: id, TextRef: textRef, CorpusRef: corpusRef,
			Layer: cols[3], Name: cols[4],
			Left: left, Right: right, TokenIndex: tokIdx, Span: cols[8],
		})
		return nil
	})
	return out, err
}

func readNodeAnnotationTab(dir string) ([]nodeAnnotation, error) {
	var out []nodeAnnotation
	err := scanTable(dir, "node_annotation", func(cols []string) error {
		if len(cols) < 4 {
			return fmt.Errorf("short row")
		}
		ref, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		out = append(out, nodeAnnotation{NodeRef: ref, NS: cols[1], Name: cols[2], Value: cols[3]})
		return nil
	})
	return out, err
}

func readComponentTab(dir string) (map[int64]componentRow, error) {
	out := make(map[int64]componentRow)
	err := scanTable(dir, "component", func(cols []string) error {
		if len(cols) < 4 {
			return fmt.Errorf("short row")
		}
		id, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		layer, name := cols[2], cols[3]
		if layer == nullValue {
			layer = "default"
		}
		if name == nullValue {
			name = ""
		}
		out[id] = componentRow{ID: id, Type: cols[1], Layer: layer, Name: name}
		return nil
	})
	return out, err
}

func readRankTab(dir string) ([]rank, error) {
	var out []rank
	err := scanTable(dir, "rank", func(cols []string) error {
		if len(cols) < 6 {
			return fmt.Errorf("short row")
		}
		id, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		nodeRef, err := parseInt(cols[3])
		if err != nil {
			return err
		}
		compRef, err := parseInt(cols[4])
		if err != nil {
			return err
		}
		parent, err := parseNullableInt(cols[5])
		if err != nil {
			return err
		}
		out = append(out, rank{ID: id, NodeRef: nodeRef, ComponentRef: compRef, Parent: parent})
		return nil
	})
	return out, err
}

func readEdgeAnnotationTab(dir string) ([]edgeAnnotation, error) {
	var out []edgeAnnotation
	if _, err := tabFile(dir, "edge_annotation"); err != nil {
		return nil, nil // optional table
	}
	err := scanTable(dir, "edge_annotation", func(cols []string) error {
		if len(cols) < 4 {
			return fmt.Errorf("short row")
		}
		ref, err := parseInt(cols[0])
		if err != nil {
			return err
		}
		out = append(out, edgeAnnotation{RankRef: ref, NS: cols[1], Name: cols[2], Value: cols[3]})
		return nil
	})
	return out, err
}
