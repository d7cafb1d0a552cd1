package docstore

import (
	"fmt"
	"sort"
)

// Value ordering used by filters and sorts. Values compare within a type
// family (bool, number, string); across families they order by family rank,
// with a missing field treated as nil and ranked first. Ordered filter ops
// never match across families.
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func familyRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int, int32, int64, float32, float64:
		return rankNumber
	case string:
		return rankString
	default:
		return rankOther
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// compareValues orders a against b: -1, 0, or 1. sameFamily is false when
// the two values belong to different type families (or either is outside
// the comparable families), in which case the result is the family-rank
// order used only for sorting.
func compareValues(a, b any) (cmp int, sameFamily bool) {
	ra, rb := familyRank(a), familyRank(b)
	if ra != rb {
		switch {
		case ra < rb:
			return -1, false
		default:
			return 1, false
		}
	}
	switch ra {
	case rankNil:
		return 0, true
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		default:
			return 1, true
		}
	case rankNumber:
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	case rankString:
		as, bs := a.(string), b.(string)
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	default:
		// Other families (maps, slices, times) order by rendered form
		// for sort stability only; they never satisfy filters.
		as, bs := fmt.Sprint(a), fmt.Sprint(b)
		switch {
		case as < bs:
			return -1, false
		case as > bs:
			return 1, false
		default:
			return 0, false
		}
	}
}

// Match reports whether doc satisfies every filter of q.
func Match(q Query, doc Document) bool {
	for _, f := range q.Filters {
		v, present := doc.Fields[f.Field]
		if !present {
			v = nil
		}
		cmp, same := compareValues(v, f.Value)
		switch f.Op {
		case OpEqual:
			if !same || cmp != 0 {
				return false
			}
		case OpNotEqual:
			// A value of a different family is "not equal", but an absent
			// field against a nil target is equal.
			if same && cmp == 0 {
				return false
			}
		case OpLess:
			if !same || cmp >= 0 {
				return false
			}
		case OpLessEq:
			if !same || cmp > 0 {
				return false
			}
		case OpGreater:
			if !same || cmp <= 0 {
				return false
			}
		case OpGreaterEq:
			if !same || cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SortDocs orders docs by q.OrderBy in sequence, breaking remaining ties
// by document ID so results are deterministic.
func SortDocs(q Query, docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range q.OrderBy {
			cmp, _ := compareValues(docs[i].Fields[o.Field], docs[j].Fields[o.Field])
			if cmp == 0 {
				continue
			}
			if o.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

// Apply evaluates q over a collection's documents: filter, sort, limit.
// The input slice is not modified; the result is a fresh slice (the
// Documents themselves are shared, callers copy at the boundary).
func Apply(q Query, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Match(q, d) {
			out = append(out, d)
		}
	}
	SortDocs(q, out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
