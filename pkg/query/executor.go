package query

// Executor runs a Plan to completion, producing every fully-bound Tuple
// (spec §4.10: "the executor composes joins left to right, producing a
// stream of tuples with one match per query node"). Unlike the Search
// iterators above, the executor materializes its intermediate rows: query
// graphs in this system are small (a handful of nodes), so the simplicity
// of building the join result set directly outweighs the cost of a fully
// lazy, cursor-sharing pipeline.
type Executor struct {
	plan *Plan
}

// NewExecutor wraps plan for execution.
func NewExecutor(plan *Plan) *Executor { return &Executor{plan: plan} }

// pair is one (lhs, rhs) produced by a join edge, materialized once per
// edge and reused both to extend rows and, when an edge reconnects two
// already-bound query nodes, to filter them.
type pair struct {
	lhs, rhs Match
}

func collectJoinPairs(j Join) []pair {
	j.Reset()
	var out []pair
	for {
		l, r, ok := j.Next()
		if !ok {
			break
		}
		out = append(out, pair{lhs: l, rhs: r})
	}
	return out
}

// Run executes the plan and returns every matching Tuple (spec §4.9's
// "malformed query" case is rejected earlier, by BuildPlan).
func (ex *Executor) Run() []Tuple {
	n := len(ex.plan.Nodes)
	if n == 0 {
		return nil
	}

	if len(ex.plan.Steps) == 0 {
		// A single free-standing query node: just its own matches.
		var out []Tuple
		s := ex.plan.Nodes[0].Search
		s.Reset()
		for {
			m, ok := s.Next()
			if !ok {
				break
			}
			out = append(out, Tuple{m})
		}
		return out
	}

	boundSoFar := make([]bool, n)
	tuples := []Tuple{make(Tuple, n)}

	for _, step := range ex.plan.Steps {
		l, r := step.Left, step.Right

		if step.Filter != nil {
			tuples = filterExisting(tuples, step.Filter, l, r)
			continue
		}

		pairs := collectJoinPairs(step.Join)
		switch {
		case !boundSoFar[l] && !boundSoFar[r]:
			tuples = crossExtend(tuples, pairs, l, r)
		case boundSoFar[l] && !boundSoFar[r]:
			tuples = extendFromBound(tuples, pairs, l, r, true)
		case !boundSoFar[l] && boundSoFar[r]:
			tuples = extendFromBound(tuples, pairs, r, l, false)
		default:
			tuples = filterByPairSet(tuples, pairs, l, r)
		}
		boundSoFar[l] = true
		boundSoFar[r] = true
	}

	return tuples
}

func filterExisting(tuples []Tuple, f *FilterJoin, l, r int) []Tuple {
	out := tuples[:0:0]
	for _, t := range tuples {
		if f.Accepts(t[l], t[r]) {
			out = append(out, t)
		}
	}
	return out
}

// crossExtend binds two previously-untouched query nodes onto every
// existing row, one new row per (existing row, pair) combination.
func crossExtend(tuples []Tuple, pairs []pair, l, r int) []Tuple {
	var out []Tuple
	for _, t := range tuples {
		for _, p := range pairs {
			nt := make(Tuple, len(t))
			copy(nt, t)
			nt[l] = p.lhs
			nt[r] = p.rhs
			out = append(out, nt)
		}
	}
	return out
}

// extendFromBound binds the free index onto rows already holding a value
// at boundIdx, keeping only pairs whose bound side matches the row's
// existing value. lhsIsBound says whether boundIdx corresponds to the
// pair's lhs (true) or rhs (false).
func extendFromBound(tuples []Tuple, pairs []pair, boundIdx, freeIdx int, lhsIsBound bool) []Tuple {
	byBound := make(map[annoKey][]Match)
	for _, p := range pairs {
		if lhsIsBound {
			k := matchKey(p.lhs)
			byBound[k] = append(byBound[k], p.rhs)
		} else {
			k := matchKey(p.rhs)
			byBound[k] = append(byBound[k], p.lhs)
		}
	}

	var out []Tuple
	for _, t := range tuples {
		for _, free := range byBound[matchKey(t[boundIdx])] {
			nt := make(Tuple, len(t))
			copy(nt, t)
			nt[freeIdx] = free
			out = append(out, nt)
		}
	}
	return out
}

// RunAlternatives executes each plan in turn and unions their tuples,
// matching spec §4.9's disjunctive query form ("alternatives: run each
// alternative to exhaustion, union the emissions"). Plans are independent
// query graphs and need not share node count or shape.
func RunAlternatives(plans []*Plan) []Tuple {
	var out []Tuple
	for _, p := range plans {
		out = append(out, NewExecutor(p).Run()...)
	}
	return out
}

// filterByPairSet handles the case where an edge reconnects two query
// nodes that were already bound independently (each via its own earlier
// cross), keeping only rows whose (l, r) values actually appear together
// in pairs.
func filterByPairSet(tuples []Tuple, pairs []pair, l, r int) []Tuple {
	set := make(map[[2]annoKey]struct{}, len(pairs))
	for _, p := range pairs {
		set[[2]annoKey{matchKey(p.lhs), matchKey(p.rhs)}] = struct{}{}
	}

	out := tuples[:0:0]
	for _, t := range tuples {
		if _, ok := set[[2]annoKey{matchKey(t[l]), matchKey(t[r])}]; ok {
			out = append(out, t)
		}
	}
	return out
}
