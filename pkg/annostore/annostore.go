// Package annostore implements the per-node annotation multimap (spec §4.2):
// a mapping (node, key) -> value with secondary indexes for key-only scans,
// exact-value scans, and a per-key value histogram used for count
// estimation.
//
// Invariant: at most one value is stored per (node, key) pair. Upserting a
// key that already has a value for a node overwrites it and updates every
// secondary index accordingly.
package annostore

import (
	"regexp"
	"sort"
	"sync"

	"github.com/corpusgraph/corpusdb/pkg/strpool"
)

// NodeID is the corpus-wide dense node identifier (spec §3).
type NodeID uint32

// Key is an annotation key: a (namespace, name) pair of interned string
// IDs, e.g. (annis, node_name) or (default_ns, pos).
type Key struct {
	Ns   strpool.ID
	Name strpool.ID
}

// Annotation is the full (key, value) triple attached to a node.
type Annotation struct {
	Key   Key
	Value strpool.ID
}

// Entry is a single (node, annotation) pair, the unit BulkInsert accepts.
type Entry struct {
	Node NodeID
	Anno Annotation
}

// Store holds all node annotations for one corpus.
type Store struct {
	mu sync.RWMutex

	// byNode[node][key] = value; at most one value per (node,key).
	byNode map[NodeID]map[Key]strpool.ID

	// byKey[key] = set of nodes carrying that key, any value.
	byKey map[Key]map[NodeID]struct{}

	// byKeyValue[key][value] = set of nodes with exactly that (key,value).
	byKeyValue map[Key]map[strpool.ID]map[NodeID]struct{}

	// histogram[key][value] = count of nodes, rebuilt by RecomputeStatistics
	// and used by GuessMaxCount as a conservative estimate source.
	histogram     map[Key]map[strpool.ID]int64
	histogramOK   bool
}

// New returns an empty annotation store.
func New() *Store {
	return &Store{
		byNode:     make(map[NodeID]map[Key]strpool.ID),
		byKey:      make(map[Key]map[NodeID]struct{}),
		byKeyValue: make(map[Key]map[strpool.ID]map[NodeID]struct{}),
		histogram:  make(map[Key]map[strpool.ID]int64),
	}
}

// Upsert sets (node, key) -> value, overwriting any prior value for that
// key on that node and updating every secondary index.
func (s *Store) Upsert(node NodeID, key Key, value strpool.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(node, key, value)
}

func (s *Store) upsertLocked(node NodeID, key Key, value strpool.ID) {
	nodeAnnos, ok := s.byNode[node]
	if !ok {
		nodeAnnos = make(map[Key]strpool.ID)
		s.byNode[node] = nodeAnnos
	}
	if old, existed := nodeAnnos[key]; existed {
		if old == value {
			return
		}
		s.removeFromValueIndexLocked(node, key, old)
	}
	nodeAnnos[key] = value

	if s.byKey[key] == nil {
		s.byKey[key] = make(map[NodeID]struct{})
	}
	s.byKey[key][node] = struct{}{}

	if s.byKeyValue[key] == nil {
		s.byKeyValue[key] = make(map[strpool.ID]map[NodeID]struct{})
	}
	if s.byKeyValue[key][value] == nil {
		s.byKeyValue[key][value] = make(map[NodeID]struct{})
	}
	s.byKeyValue[key][value][node] = struct{}{}

	s.histogramOK = false
}

// Delete removes (node, key) if present; a no-op if it is absent.
func (s *Store) Delete(node NodeID, key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(node, key)
}

func (s *Store) deleteLocked(node NodeID, key Key) {
	nodeAnnos, ok := s.byNode[node]
	if !ok {
		return
	}
	value, ok := nodeAnnos[key]
	if !ok {
		return
	}
	delete(nodeAnnos, key)
	if len(nodeAnnos) == 0 {
		delete(s.byNode, node)
	}
	s.removeFromValueIndexLocked(node, key, value)
	s.histogramOK = false
}

func (s *Store) removeFromValueIndexLocked(node NodeID, key Key, value strpool.ID) {
	if nodes, ok := s.byKeyValue[key][value]; ok {
		delete(nodes, node)
		if len(nodes) == 0 {
			delete(s.byKeyValue[key], value)
		}
	}
	// Recompute key-only membership: node leaves the key index only if it
	// no longer carries key under any value.
	stillHasKey := false
	if nodeAnnos, ok := s.byNode[node]; ok {
		if _, has := nodeAnnos[key]; has {
			stillHasKey = true
		}
	}
	if !stillHasKey {
		if nodes, ok := s.byKey[key]; ok {
			delete(nodes, node)
			if len(nodes) == 0 {
				delete(s.byKey, key)
			}
		}
	}
}

// DeleteNode removes every annotation belonging to node.
func (s *Store) DeleteNode(node NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodeAnnos, ok := s.byNode[node]
	if !ok {
		return
	}
	for key := range nodeAnnos {
		s.deleteLocked(node, key)
	}
}

// Get returns the value stored for (node, key), if any.
func (s *Store) Get(node NodeID, key Key) (strpool.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byNode[node][key]
	return v, ok
}

// AllForNode returns every annotation on node, order unspecified.
func (s *Store) AllForNode(node NodeID) []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	annos := make([]Annotation, 0, len(s.byNode[node]))
	for k, v := range s.byNode[node] {
		annos = append(annos, Annotation{Key: k, Value: v})
	}
	return annos
}

// NodesByKey returns every node carrying key, any value.
func (s *Store) NodesByKey(key Key) []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return setToSlice(s.byKey[key])
}

// NodesByKeyValue returns every node carrying (key, value) exactly.
func (s *Store) NodesByKeyValue(key Key, value strpool.ID) []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return setToSlice(s.byKeyValue[key][value])
}

// NodesByKeyRegex returns every node whose value for key matches one of
// the candidate value IDs (typically produced by strpool.Pool.FindRegex).
func (s *Store) NodesByKeyRegex(key Key, candidateValues map[strpool.ID]struct{}) []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[NodeID]struct{})
	for v := range candidateValues {
		for n := range s.byKeyValue[key][v] {
			seen[n] = struct{}{}
		}
	}
	return setToSlice(seen)
}

func setToSlice(set map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BulkUpsert accepts an unordered batch of entries and applies them,
// sorting internally by node to reduce lock-acquisition churn (spec §4.2:
// "Bulk insert accepts an unordered batch and sorts internally").
func (s *Store) BulkUpsert(entries []Entry) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Node < sorted[j].Node })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range sorted {
		s.upsertLocked(e.Node, e.Anno.Key, e.Anno.Value)
	}
}

// RecomputeStatistics rebuilds the per-(key,value) histogram used by
// GuessMaxCount. Queries must treat statistics as either valid or
// conservatively absent (spec §4.2); GuessMaxCount falls back to a
// worst-case estimate when the histogram has never been built.
func (s *Store) RecomputeStatistics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make(map[Key]map[strpool.ID]int64, len(s.byKeyValue))
	for key, values := range s.byKeyValue {
		perValue := make(map[strpool.ID]int64, len(values))
		for v, nodes := range values {
			perValue[v] = int64(len(nodes))
		}
		hist[key] = perValue
	}
	s.histogram = hist
	s.histogramOK = true
}

// GuessMaxCount estimates how many nodes carry a value matching pattern
// (nil pattern means "any value") for key. When statistics are valid this
// sums the histogram entries matching pattern; otherwise it conservatively
// returns the total number of nodes carrying key at all (never an
// undercount, per spec.md's "conservative" guidance in §8).
func (s *Store) GuessMaxCount(pool *strpool.Pool, key Key, pattern *regexp.Regexp) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.histogramOK {
		return int64(len(s.byKey[key]))
	}

	if pattern == nil {
		var sum int64
		for _, c := range s.histogram[key] {
			sum += c
		}
		return sum
	}

	var sum int64
	for value, c := range s.histogram[key] {
		s, ok := pool.Lookup(value)
		if ok && pattern.MatchString(s) {
			sum += c
		}
	}
	return sum
}

// AllEntries returns every (node, annotation) pair currently stored, for
// persistence (spec §6 nodes.bin contains "string pool + node annotations").
func (s *Store) AllEntries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.byNode))
	for node, annos := range s.byNode {
		for key, value := range annos {
			out = append(out, Entry{Node: node, Anno: Annotation{Key: key, Value: value}})
		}
	}
	return out
}

// NodeCount returns the number of distinct nodes carrying any annotation.
func (s *Store) NodeCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byNode))
}
