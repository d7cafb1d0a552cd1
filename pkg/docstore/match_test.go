package docstore

import (
	"reflect"
	"testing"
)

func TestMatchFilters(t *testing.T) {
	doc := Document{ID: "d1", Fields: map[string]any{
		"subject": "math",
		"score":   42,
		"ratio":   0.5,
		"done":    false,
	}}
	coll := MustParsePath("things")

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"string eq", Filter{"subject", OpEqual, "math"}, true},
		{"string eq miss", Filter{"subject", OpEqual, "art"}, false},
		{"string neq", Filter{"subject", OpNotEqual, "art"}, true},
		{"int eq float target", Filter{"score", OpEqual, 42.0}, true},
		{"int lt", Filter{"score", OpLess, 50}, true},
		{"int lt miss", Filter{"score", OpLess, 42}, false},
		{"int lte", Filter{"score", OpLessEq, 42}, true},
		{"int gt", Filter{"score", OpGreater, 41.5}, true},
		{"int gte miss", Filter{"score", OpGreaterEq, 43}, false},
		{"float range", Filter{"ratio", OpGreater, 0.25}, true},
		{"bool eq", Filter{"done", OpEqual, false}, true},
		{"cross family never matches eq", Filter{"score", OpEqual, "42"}, false},
		{"cross family never matches lt", Filter{"subject", OpLess, 10}, false},
		{"cross family is not-equal", Filter{"score", OpNotEqual, "42"}, true},
		{"missing field eq nil", Filter{"absent", OpEqual, nil}, true},
		{"missing field neq nil", Filter{"absent", OpNotEqual, nil}, false},
		{"missing field eq value", Filter{"absent", OpEqual, "x"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q := Query{Path: coll, Filters: []Filter{c.filter}}
			if got := Match(q, doc); got != c.want {
				t.Errorf("Match(%+v) = %v, want %v", c.filter, got, c.want)
			}
		})
	}
}

func TestMatchConjunction(t *testing.T) {
	doc := Document{ID: "d1", Fields: map[string]any{"a": 1, "b": 2}}
	q := Query{Path: MustParsePath("things"), Filters: []Filter{
		{"a", OpEqual, 1},
		{"b", OpEqual, 2},
	}}
	if !Match(q, doc) {
		t.Error("conjunction of satisfied filters should match")
	}
	q.Filters[1].Value = 3
	if Match(q, doc) {
		t.Error("one failing filter should reject the document")
	}
}

func TestApplySortAndLimit(t *testing.T) {
	docs := []Document{
		{ID: "a", Fields: map[string]any{"rank": 3, "grp": "x"}},
		{ID: "b", Fields: map[string]any{"rank": 1, "grp": "y"}},
		{ID: "c", Fields: map[string]any{"rank": 2, "grp": "x"}},
		{ID: "d", Fields: map[string]any{"grp": "x"}}, // no rank: sorts first ascending
	}
	coll := MustParsePath("things")

	q := Query{Path: coll, OrderBy: []Order{{Field: "rank"}}}
	got := ids(Apply(q, docs))
	if want := []string{"d", "b", "c", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ascending: got %v, want %v", got, want)
	}

	q = Query{Path: coll, OrderBy: []Order{{Field: "rank", Descending: true}}, Limit: 2}
	got = ids(Apply(q, docs))
	if want := []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("descending limited: got %v, want %v", got, want)
	}

	q = Query{Path: coll, Filters: []Filter{{"grp", OpEqual, "x"}}, OrderBy: []Order{{Field: "rank", Descending: true}}}
	got = ids(Apply(q, docs))
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("filtered: got %v, want %v", got, want)
	}

	// Secondary tie-break is document ID.
	q = Query{Path: coll, OrderBy: []Order{{Field: "grp"}}}
	got = ids(Apply(q, docs))
	if want := []string{"a", "c", "d", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tie-break: got %v, want %v", got, want)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	docs := []Document{
		{ID: "b", Fields: map[string]any{"n": 2}},
		{ID: "a", Fields: map[string]any{"n": 1}},
	}
	Apply(Query{Path: MustParsePath("things"), OrderBy: []Order{{Field: "n"}}}, docs)
	if docs[0].ID != "b" || docs[1].ID != "a" {
		t.Error("Apply reordered the caller's slice")
	}
}

func TestCloneFields(t *testing.T) {
	src := map[string]any{
		"nested": map[string]any{"k": "v"},
		"list":   []any{1, map[string]any{"x": "y"}},
		"plain":  "s",
	}
	dup := CloneFields(src)
	dup["nested"].(map[string]any)["k"] = "changed"
	dup["list"].([]any)[1].(map[string]any)["x"] = "changed"
	if src["nested"].(map[string]any)["k"] != "v" {
		t.Error("nested map aliased")
	}
	if src["list"].([]any)[1].(map[string]any)["x"] != "y" {
		t.Error("nested slice element aliased")
	}
	if CloneFields(nil) != nil {
		t.Error("clone of nil should stay nil")
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
