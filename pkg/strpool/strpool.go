// Package strpool implements the corpus string pool (spec §4.1): a
// bidirectional mapping between interned strings and dense 32-bit IDs.
//
// Every annotation name, namespace, value, and node path in a corpus graph
// is interned once and referenced everywhere else by ID. This keeps edges,
// annotations, and node identities compact and comparison-by-equality cheap.
//
// Example:
//
//	p := strpool.New()
//	id := p.Intern("Person")
//	s, ok := p.Lookup(id)   // "Person", true
//	id2 := p.Intern("Person")
//	// id == id2: intern is idempotent by content.
package strpool

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ID is a 32-bit string identifier. ID 0 and ID Invalid are reserved
// sentinels and are never assigned by Intern.
type ID uint32

const (
	// Any is the "match anything" sentinel ID (0).
	Any ID = 0
	// Invalid marks "no such string" (max uint32).
	Invalid ID = 1<<32 - 1
)

// Pool interns strings to dense IDs and supports reverse lookup and
// regex-prefix scans over the interned set. Safe for concurrent use.
type Pool struct {
	mu sync.RWMutex

	byID   map[ID]string
	byHash map[uint64][]idString // hash bucket to guard against xxhash collisions

	// sortedValues is a lazily (re)built slice of all interned strings in
	// sorted order, used by FindRegex to bound its scan to a prefix range.
	// Invalidated on every Intern; rebuilt on first FindRegex after that.
	sortedValues []idString
	sortedValid  bool

	nextID ID
}

type idString struct {
	id ID
	s  string
}

// New returns an empty pool. ID 0 is reserved and never handed out by
// Intern; the first interned string receives ID 1.
func New() *Pool {
	return &Pool{
		byID:   make(map[ID]string),
		byHash: make(map[uint64][]idString),
		nextID: 1,
	}
}

// Intern returns the ID for s, assigning a new one if s has not been seen
// before. Intern is idempotent by content: Intern(s) == Intern(s) across
// any number of calls, in any order relative to other strings.
func (p *Pool) Intern(s string) ID {
	h := xxhash.Sum64String(s)

	p.mu.RLock()
	if id, ok := p.findHashed(h, s); ok {
		p.mu.RUnlock()
		return id
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	// Re-check under the write lock: another goroutine may have interned
	// the same string while we waited.
	if id, ok := p.findHashed(h, s); ok {
		return id
	}

	id := p.nextID
	p.nextID++
	p.byID[id] = s
	p.byHash[h] = append(p.byHash[h], idString{id: id, s: s})
	p.sortedValid = false
	return id
}

// findHashed must be called with at least a read lock held.
func (p *Pool) findHashed(h uint64, s string) (ID, bool) {
	for _, e := range p.byHash[h] {
		if e.s == s {
			return e.id, true
		}
	}
	return 0, false
}

// Lookup returns the string for id, or ("", false) if id was never
// assigned (including the reserved sentinels Any and Invalid).
func (p *Pool) Lookup(id ID) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.byID[id]
	return s, ok
}

// MustLookup is a convenience wrapper for callers that already know id is
// valid (e.g. it came from an annotation they interned themselves).
func (p *Pool) MustLookup(id ID) string {
	s, ok := p.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("strpool: unknown id %d", id))
	}
	return s
}

// Size returns the number of interned strings.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// Entry is a single (id, string) pair, the unit Dump/Restore exchange with
// the on-disk snapshot format.
type Entry struct {
	ID ID
	S  string
}

// Dump returns every interned (id, string) pair, for persistence.
func (p *Pool) Dump() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.byID))
	for id, s := range p.byID {
		out = append(out, Entry{ID: id, S: s})
	}
	return out
}

// Restore repopulates the pool from a prior Dump, preserving exact IDs so
// that annotation and edge records referencing those IDs stay valid. It is
// only meaningful on an empty, freshly-constructed pool.
func (p *Pool) Restore(entries []Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		p.byID[e.ID] = e.S
		h := xxhash.Sum64String(e.S)
		p.byHash[h] = append(p.byHash[h], idString{id: e.ID, s: e.S})
		if e.ID >= p.nextID {
			p.nextID = e.ID + 1
		}
	}
	p.sortedValid = false
}

// FindRegex returns the IDs of every interned string matching pattern.
// An invalid pattern is not an error: it returns the empty set, matching
// the "recoverable conditions are hidden" policy of spec.md §7.
//
// Implementation computes the pattern's literal prefix (if any) via the
// regexp/syntax tree, narrows the scan to the lexicographic range of
// interned strings sharing that prefix, then matches each candidate with
// the compiled regexp. A pattern with no literal prefix (e.g. ".*foo")
// falls back to scanning every interned string.
func (p *Pool) FindRegex(pattern string) map[ID]struct{} {
	result := make(map[ID]struct{})

	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return result
	}

	prefix, _ := literalPrefix(pattern)

	p.mu.Lock()
	if !p.sortedValid {
		p.rebuildSortedLocked()
	}
	values := p.sortedValues
	p.mu.Unlock()

	lo, hi := prefixRange(values, prefix)
	for _, e := range values[lo:hi] {
		if re.MatchString(e.s) {
			result[e.id] = struct{}{}
		}
	}
	return result
}

// rebuildSortedLocked must be called with the write lock held.
func (p *Pool) rebuildSortedLocked() {
	values := make([]idString, 0, len(p.byID))
	for id, s := range p.byID {
		values = append(values, idString{id: id, s: s})
	}
	sort.Slice(values, func(i, j int) bool { return values[i].s < values[j].s })
	p.sortedValues = values
	p.sortedValid = true
}

// literalPrefix extracts the longest literal prefix regexp/syntax can
// prove every match of pattern must start with. Returns ("", false) when
// no such prefix exists (e.g. the pattern starts with ".*" or "^" is
// missing and alternation is used at the top level).
func literalPrefix(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}
	prog, err := syntax.Compile(re.Simplify())
	if err != nil {
		return "", false
	}
	prefix, _ := prog.Prefix()
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

// prefixRange returns [lo, hi) bounding every entry in the sorted slice
// values whose string starts with prefix. When prefix is "", the full
// range [0, len(values)) is returned (scan everything).
func prefixRange(values []idString, prefix string) (int, int) {
	if prefix == "" {
		return 0, len(values)
	}
	lo := sort.Search(len(values), func(i int) bool { return values[i].s >= prefix })
	upper := prefixUpperBound(prefix)
	hi := len(values)
	if upper != "" {
		hi = sort.Search(len(values), func(i int) bool { return values[i].s >= upper })
	}
	return lo, hi
}

// prefixUpperBound returns the smallest string that is lexicographically
// greater than every string starting with prefix, by incrementing the last
// byte (with carry). Returns "" if prefix is all 0xFF bytes (no upper
// bound needed; scan to the end).
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
