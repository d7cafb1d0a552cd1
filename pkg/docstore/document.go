package docstore

// Document is a materialized record: the document ID plus its
// loosely-typed field payload. Snapshots hand out fresh copies,
// so holding a Document never aliases store-internal state.
type Document struct {
	ID     string
	Fields map[string]any
}

// QuerySnapshot is the full result set of a query at one point in time.
// Successive snapshots replace each other wholesale; they are never merged.
type QuerySnapshot struct {
	Docs []Document
}

// DocumentSnapshot is the state of a single document at one point in time.
// Exists=false means the document was deleted or never created, which is
// distinct from a read that has not completed yet.
type DocumentSnapshot struct {
	ID     string
	Fields map[string]any
	Exists bool
}

// CloneFields deep-copies a field map. Nested map[string]any and []any
// values are copied recursively; all other values are copied as-is.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
