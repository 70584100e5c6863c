// Package snapshot implements the on-disk corpus directory layout of
// spec.md §6: current/, backup/, temporary-* directories holding a
// self-describing serialization of the string pool, annotation store, edge
// components, and the pending update log.
//
// Binary format note: the teacher's own WAL (nornicdb/pkg/storage/wal.go)
// serializes each entry with encoding/json rather than a hand-rolled binary
// codec; we follow that convention here. JSON with named Go structs is
// already self-describing (field names double as the type tag spec.md §6
// asks for), so there is no bespoke binary format to invent or maintain.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corpusgraph/corpusdb/pkg/annostore"
	"github.com/corpusgraph/corpusdb/pkg/component"
	"github.com/corpusgraph/corpusdb/pkg/corpus"
	"github.com/corpusgraph/corpusdb/pkg/graphstorage"
	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

var (
	ErrNotACorpusDir = errors.New("snapshot: directory has no current/ or backup/ snapshot")
)

const (
	dirCurrent  = "current"
	dirBackup   = "backup"
	nodesFile   = "nodes.bin"
	updateLog   = "update_log.bin"
	gsDir       = "gs"
	componentFn = "component.bin"
)

// nodesFileFormat is the JSON body of nodes.bin (spec §6: "string pool +
// node annotations").
type nodesFileFormat struct {
	Pool  []strpool.Entry    `json:"pool"`
	Paths []corpus.PathEntry `json:"paths"`
	Annos []annostore.Entry  `json:"annos"`
}

// componentFileFormat is the JSON body of each gs/.../component.bin.
type componentFileFormat struct {
	Type  component.Type     `json:"type"`
	Layer string             `json:"layer"`
	Name  string              `json:"name"`
	Kind  graphstorage.ImplKind `json:"kind"`
	Edges []edgeRecord       `json:"edges"`
}

type edgeRecord struct {
	Source annostore.NodeID       `json:"source"`
	Target annostore.NodeID       `json:"target"`
	Annos  []graphstorage.Annotation `json:"annos"`
}

// updateLogFormat is the JSON body of update_log.bin.
type updateLogFormat struct {
	Events    []corpus.Event `json:"events"`
	Watermark uint64         `json:"watermark"`
}

// Save writes pool, annotation store, and every *loaded* component under
// dir/current, matching spec §4.4 "Save": "Write pool and annotation
// store, then each component file ... Remove any stale temporary-*
// directories and the update log on success."
func Save(c *corpus.Corpus, dir string) error {
	cur := filepath.Join(dir, dirCurrent)
	if err := os.MkdirAll(cur, 0o755); err != nil {
		return fmt.Errorf("snapshot: save: %w", err)
	}

	nf := nodesFileFormat{
		Pool:  c.Pool.Dump(),
		Paths: c.DumpPaths(),
		Annos: c.Annos.AllEntries(),
	}
	if err := writeJSONFile(filepath.Join(cur, nodesFile), nf); err != nil {
		return fmt.Errorf("snapshot: save nodes: %w", err)
	}

	allNodes := c.AllNodeIDs()
	for _, comp := range c.Components() {
		storage, err := c.Storage(comp)
		if err != nil {
			return fmt.Errorf("snapshot: save component %s: %w", comp, err)
		}
		if err := saveComponent(cur, comp, storage, allNodes); err != nil {
			return fmt.Errorf("snapshot: save component %s: %w", comp, err)
		}
	}

	if err := removeStaleTemporaries(dir); err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(cur, updateLog))
	return nil
}

func saveComponent(curDir string, comp component.Component, storage graphstorage.ReadableGraphStorage, allNodes []graphstorage.NodeID) error {
	path := append([]string{curDir, gsDir}, comp.Path()...)
	full := filepath.Join(path...)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return err
	}

	cf := componentFileFormat{
		Type:  comp.Type,
		Layer: comp.Layer,
		Name:  comp.Name,
		Kind:  kindOf(storage),
		Edges: dumpEdges(storage, allNodes),
	}
	return writeJSONFile(filepath.Join(full, componentFn), cf)
}

func dumpEdges(storage graphstorage.ReadableGraphStorage, nodes []graphstorage.NodeID) []edgeRecord {
	var out []edgeRecord
	seen := make(map[graphstorage.Edge]struct{})
	for _, n := range nodes {
		for _, t := range storage.Outgoing(n) {
			e := graphstorage.Edge{Source: n, Target: t}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, edgeRecord{Source: e.Source, Target: e.Target, Annos: storage.EdgeAnnotations(e)})
		}
	}
	return out
}

func kindOf(storage graphstorage.ReadableGraphStorage) graphstorage.ImplKind {
	switch storage.(type) {
	case *graphstorage.PrePostOrderStorage:
		return graphstorage.KindPrePostOrder
	case *graphstorage.LinearStorage:
		return graphstorage.KindLinear
	case *graphstorage.DenseAdjacencyStorage:
		return graphstorage.KindDense
	default:
		return graphstorage.KindAdjacencyList
	}
}

// Load opens the corpus directory at dir (spec §4.4 "Load"). If a sibling
// backup/ exists it is used instead of current/ (an interrupted snapshot
// write), and is rotated into current/ plus a cleaned-up temporary-*
// directory once the reload + resave succeeds.
func Load(dir string, preload bool) (*corpus.Corpus, error) {
	source := filepath.Join(dir, dirCurrent)
	usedBackup := false
	if info, err := os.Stat(filepath.Join(dir, dirBackup)); err == nil && info.IsDir() {
		source = filepath.Join(dir, dirBackup)
		usedBackup = true
	} else if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotACorpusDir, dir)
	}

	c := corpus.New()

	var nf nodesFileFormat
	if err := readJSONFile(filepath.Join(source, nodesFile), &nf); err != nil {
		return nil, fmt.Errorf("snapshot: load nodes: %w", err)
	}
	c.Pool.Restore(nf.Pool)
	c.RestorePaths(nf.Paths)
	if len(nf.Annos) > 0 {
		c.Annos.BulkUpsert(nf.Annos)
	}

	if err := loadComponents(c, source, preload); err != nil {
		return nil, err
	}

	logPath := filepath.Join(source, updateLog)
	if _, err := os.Stat(logPath); err == nil {
		entries, err := readUpdateLog(logPath)
		if err != nil {
			return nil, fmt.Errorf("snapshot: load update log: %w", err)
		}
		for _, ul := range entries {
			c.Update(corpus.GraphUpdate{Events: ul.Events, Watermark: ul.Watermark})
		}
	}

	if usedBackup {
		if err := c.EnsureAllComponentsLoaded(); err != nil {
			return nil, fmt.Errorf("snapshot: loading components after backup recovery: %w", err)
		}
		if err := Save(c, dir); err != nil {
			return nil, fmt.Errorf("snapshot: resaving after backup recovery: %w", err)
		}
		tmp := filepath.Join(dir, fmt.Sprintf("temporary-%d", time.Now().UnixNano()))
		if err := os.Rename(filepath.Join(dir, dirBackup), tmp); err == nil {
			_ = os.RemoveAll(tmp)
		}
	}

	return c, nil
}

func loadComponents(c *corpus.Corpus, sourceDir string, preload bool) error {
	gsRoot := filepath.Join(sourceDir, gsDir)
	if _, err := os.Stat(gsRoot); err != nil {
		return nil // no components yet, fine for an empty corpus
	}

	return filepath.WalkDir(gsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Base(path) != componentFn {
			return nil
		}
		rel, err := filepath.Rel(gsRoot, filepath.Dir(path))
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		var comp component.Component
		switch len(parts) {
		case 2:
			comp = component.New(component.Type(parts[0]), parts[1], "")
		case 3:
			comp = component.New(component.Type(parts[0]), parts[1], parts[2])
		default:
			return fmt.Errorf("snapshot: unexpected component path %s", path)
		}

		loadFn := func(target component.Component) (graphstorage.WritableGraphStorage, error) {
			return loadComponentFile(path)
		}
		if preload {
			s, err := loadComponentFile(path)
			if err != nil {
				return err
			}
			c.RegisterLoaded(comp, s)
		} else {
			c.RegisterPending(comp, loadFn)
		}
		return nil
	})
}

func loadComponentFile(path string) (graphstorage.WritableGraphStorage, error) {
	var cf componentFileFormat
	if err := readJSONFile(path, &cf); err != nil {
		return nil, err
	}
	storage := graphstorage.New(cf.Kind)
	for _, e := range cf.Edges {
		edge := graphstorage.Edge{Source: e.Source, Target: e.Target}
		if len(e.Annos) == 0 {
			_ = storage.AddEdge(edge)
			continue
		}
		for _, a := range e.Annos {
			_ = storage.AddEdgeAnnotation(edge, a)
		}
	}
	if indexed, ok := storage.(interface{ CalculateIndex() }); ok {
		indexed.CalculateIndex()
	}
	storage.CalculateStatistics()
	return storage, nil
}

// WriteUpdateLog appends gu to dir/current/update_log.bin as one more JSON
// line, fsyncing before close (spec §4.5 step 4: "write the update log
// atomically ... (fsync-on-close)"). The log accumulates every update
// applied since the last successful snapshot (spec §4.5: a crash must be
// able to replay *all* of them, not just the most recent one) -- Save
// removes the log file once a fresh snapshot lands.
func WriteUpdateLog(dir string, gu corpus.GraphUpdate) error {
	cur := filepath.Join(dir, dirCurrent)
	if err := os.MkdirAll(cur, 0o755); err != nil {
		return err
	}
	target := filepath.Join(cur, updateLog)

	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: write update log: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(updateLogFormat{Events: gu.Events, Watermark: gu.Watermark}); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: encode update log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: fsync update log: %w", err)
	}
	return f.Close()
}

// readUpdateLog decodes every JSON-lines entry appended to an update log
// file, in the order they were written.
func readUpdateLog(path string) ([]updateLogFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []updateLogFormat
	dec := json.NewDecoder(f)
	for dec.More() {
		var ul updateLogFormat
		if err := dec.Decode(&ul); err != nil {
			return nil, err
		}
		entries = append(entries, ul)
	}
	return entries, nil
}

// RotateToBackup renames dir/current to dir/backup if no backup exists yet
// (spec §4.5 background writer step a).
func RotateToBackup(dir string) error {
	backup := filepath.Join(dir, dirBackup)
	if _, err := os.Stat(backup); err == nil {
		return nil // already mid-rotation
	}
	return os.Rename(filepath.Join(dir, dirCurrent), backup)
}

// RemoveBackup deletes dir/backup (spec §4.5 background writer step c).
func RemoveBackup(dir string) error {
	return os.RemoveAll(filepath.Join(dir, dirBackup))
}

func removeStaleTemporaries(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "temporary-") {
			_ = os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
