// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package qdrant

import (
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// compileFilter translates the attribute-filter AST into Qdrant's
// native filter document: a "must" conjunction of field-match
// conditions. A nil filter compiles to nil (match everything).
func compileFilter(f vectorstore.Filter) (map[string]any, error) {
	if f == nil {
		return nil, nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	conditions, err := compileConditions(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"must": conditions}, nil
}

func compileConditions(f vectorstore.Filter) ([]any, error) {
	switch clause := f.(type) {
	case vectorstore.Equals:
		return []any{map[string]any{
			"key":   clause.Key,
			"match": map[string]any{"value": clause.Value},
		}}, nil
	case vectorstore.AnyOf:
		return []any{map[string]any{
			"key":   clause.Key,
			"match": map[string]any{"any": clause.Values},
		}}, nil
	case vectorstore.And:
		var conditions []any
		for _, sub := range clause.Clauses {
			compiled, err := compileConditions(sub)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, compiled...)
		}
		return conditions, nil
	default:
		return nil, docragerr.Errorf(docragerr.CodeStoreFilterInvalid,
			"qdrant: unsupported filter clause %T", f)
	}
}
