// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package sqlitevec

import (
	"github.com/docrag/docrag/internal/vectorstore"
)

// matchesFilter evaluates the attribute filter against one payload.
// Payloads round-trip through JSON, so numeric values arrive as
// float64 regardless of how they were written; comparisons normalize
// numbers accordingly.
func matchesFilter(f vectorstore.Filter, payload map[string]any) bool {
	switch clause := f.(type) {
	case vectorstore.Equals:
		v, ok := payload[clause.Key]
		return ok && valuesEqual(v, clause.Value)
	case vectorstore.AnyOf:
		v, ok := payload[clause.Key]
		if !ok {
			return false
		}
		for _, want := range clause.Values {
			if valuesEqual(v, want) {
				return true
			}
		}
		return false
	case vectorstore.And:
		for _, sub := range clause.Clauses {
			if !matchesFilter(sub, payload) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func valuesEqual(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return got == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
