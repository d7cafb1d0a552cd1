package docstore

import (
	"fmt"
	"strings"
)

// FilterOp is a comparison operator in a query filter.
type FilterOp string

const (
	OpEqual     FilterOp = "=="
	OpNotEqual  FilterOp = "!="
	OpLess      FilterOp = "<"
	OpLessEq    FilterOp = "<="
	OpGreater   FilterOp = ">"
	OpGreaterEq FilterOp = ">="
)

// Filter restricts a query to documents whose field compares true
// against Value. Filters on one query are conjunctive.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Order sorts query results by a field.
type Order struct {
	Field      string
	Descending bool
}

// Query describes a collection read or watch: the collection path plus
// optional filters, orderings, and a limit. Query identity is structural:
// two queries denote the same subscription iff their Keys are equal.
// The zero Query means "no query".
type Query struct {
	Path    Path
	Filters []Filter
	OrderBy []Order
	Limit   int // 0 means unlimited
}

// IsZero reports whether q is the absent query.
func (q Query) IsZero() bool {
	return q.Path.IsZero() && len(q.Filters) == 0 && len(q.OrderBy) == 0 && q.Limit == 0
}

// Validate checks that the query addresses a collection and that every
// filter and ordering is well-formed.
func (q Query) Validate() error {
	if !q.Path.Collection() {
		return fmt.Errorf("%w: query path %q is not a collection", ErrInvalidPath, q.Path.String())
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("docstore: filter with empty field")
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		default:
			return fmt.Errorf("docstore: unknown filter op %q", string(f.Op))
		}
	}
	for _, o := range q.OrderBy {
		if o.Field == "" {
			return fmt.Errorf("docstore: order by empty field")
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("docstore: negative limit %d", q.Limit)
	}
	return nil
}

// Key renders the canonical identity of the query. Filter and ordering
// positions are significant; values include their Go type so 1 and "1"
// produce distinct keys.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Path.String())
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|w:%s%s%v(%T)", f.Field, f.Op, f.Value, f.Value)
	}
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Descending {
			dir = "desc"
		}
		fmt.Fprintf(&b, "|o:%s %s", o.Field, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|l:%d", q.Limit)
	}
	return b.String()
}
