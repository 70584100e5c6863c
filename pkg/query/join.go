package query

// Tuple is a fully-bound row: one Match per query node, indexed the same
// way the planner numbers query nodes (spec §4.9/§4.10).
type Tuple []Match

// Join produces tuples by pairing a left-hand stream with right-hand
// candidates through an Operator. Every strategy below implements the
// same narrow interface so the planner can swap strategies without
// touching the executor (spec §4.9: "join strategy is an implementation
// detail chosen by the planner, not part of the query itself").
type Join interface {
	// Next advances to the next joined (left, right) pair.
	Next() (lhs, rhs Match, ok bool)
	Reset()
}

// NestedLoop re-scans the right search from the start for every left
// match, emitting pairs the operator's Filter accepts (spec §4.9: the
// fallback strategy when neither side is cheap to seed from).
type NestedLoop struct {
	left  Search
	right Search
	op    Operator

	curLeft    Match
	haveLeft   bool
	rightCache []Match
	rpos       int
}

// NewNestedLoop builds a nested-loop join of left against right under op.
func NewNestedLoop(left, right Search, op Operator) *NestedLoop {
	return &NestedLoop{left: left, right: right, op: op}
}

func (j *NestedLoop) Reset() {
	j.left.Reset()
	j.haveLeft = false
	j.rightCache = nil
	j.rpos = 0
}

func (j *NestedLoop) Next() (Match, Match, bool) {
	for {
		if !j.haveLeft {
			l, ok := j.left.Next()
			if !ok {
				return Match{}, Match{}, false
			}
			j.curLeft = l
			j.haveLeft = true
			j.rightCache = collectAll(j.right)
			j.rpos = 0
		}
		for j.rpos < len(j.rightCache) {
			r := j.rightCache[j.rpos]
			j.rpos++
			if j.op.Filter(j.curLeft, r) {
				return j.curLeft, r, true
			}
		}
		j.haveLeft = false
	}
}

// SeedJoin drives candidates from the left side via the operator's
// RetrieveMatches (spec §4.9: "seed from the side with the fewer expected
// matches, using the operator to generate candidates directly instead of
// scanning the other side's full search"). The right-hand search is only
// used to test membership (via a materialized set), not iterated.
type SeedJoin struct {
	left  Search
	right Search
	op    Operator

	rightSet map[uint32][]Match // right-side matches keyed by node

	curLeft  Match
	haveLeft bool
	cands    []Match
	cpos     int
}

type annoKey struct {
	node  uint32
	ns    uint32
	name  uint32
	value uint32
}

func matchKey(m Match) annoKey {
	return annoKey{
		node:  uint32(m.Node),
		ns:    uint32(m.Anno.Key.Ns),
		name:  uint32(m.Anno.Key.Name),
		value: uint32(m.Anno.Value),
	}
}

// NewSeedJoin builds a join that seeds candidates from left via op and
// tests them against a materialized copy of right.
func NewSeedJoin(left, right Search, op Operator) *SeedJoin {
	j := &SeedJoin{left: left, right: right, op: op}
	j.rightSet = make(map[uint32][]Match)
	for _, m := range collectAll(right) {
		j.rightSet[uint32(m.Node)] = append(j.rightSet[uint32(m.Node)], m)
	}
	return j
}

func (j *SeedJoin) Reset() {
	j.left.Reset()
	j.haveLeft = false
	j.cands = nil
	j.cpos = 0
}

func (j *SeedJoin) Next() (Match, Match, bool) {
	for {
		if !j.haveLeft {
			l, ok := j.left.Next()
			if !ok {
				return Match{}, Match{}, false
			}
			j.curLeft = l
			j.haveLeft = true
			j.cands = nil
			for _, c := range collectAll(j.op.RetrieveMatches(l)) {
				j.cands = append(j.cands, j.rightSet[uint32(c.Node)]...)
			}
			j.cpos = 0
		}
		if j.cpos < len(j.cands) {
			r := j.cands[j.cpos]
			j.cpos++
			return j.curLeft, r, true
		}
		j.haveLeft = false
	}
}

// NewMaterializedSeedJoin builds a SeedJoin that, for a commutative op,
// seeds from whichever side GuessMaxCount reports as smaller, swapping
// operand order; a non-commutative op always seeds from left. The planner
// picks this whenever the operator reports a non-negative GuessMaxCount
// (spec §4.9: "seed from the smaller side").
func NewMaterializedSeedJoin(left, right Search, op Operator, commutative bool) Join {
	if !commutative || left.GuessMaxCount() <= right.GuessMaxCount() {
		return NewSeedJoin(left, right, op)
	}
	return &swappedJoin{inner: NewSeedJoin(right, left, op)}
}

// swappedJoin flips (lhs, rhs) order back after seeding from the
// originally-right side, so callers always see pairs in query-declared
// left/right order regardless of which side was seeded.
type swappedJoin struct{ inner Join }

func (s *swappedJoin) Reset() { s.inner.Reset() }
func (s *swappedJoin) Next() (Match, Match, bool) {
	r, l, ok := s.inner.Next()
	return l, r, ok
}

// FilterJoin re-checks the operator's Filter against an already-bound pair
// without generating new candidates, used when both query nodes are
// already in the same connected component of the query graph (spec §4.9:
// "a second operator between two nodes already joined becomes a pure
// filter, not a new join edge").
type FilterJoin struct {
	op Operator
}

// NewFilterJoin builds a filter-only join.
func NewFilterJoin(op Operator) *FilterJoin { return &FilterJoin{op: op} }

// Accepts reports whether the operator holds between an already-bound pair.
func (f *FilterJoin) Accepts(lhs, rhs Match) bool { return f.op.Filter(lhs, rhs) }
