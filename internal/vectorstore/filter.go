// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

import docragerr "github.com/docrag/docrag/pkg/errors"

// Filter is a closed attribute-filter AST over point payloads. Backends
// compile it to their native representation at query and delete time;
// everything above the store boundary stays backend-agnostic.
//
// The union is Equals | AnyOf | And.
type Filter interface {
	// Validate rejects malformed clauses before any network call.
	Validate() error

	isFilter()
}

// Equals matches points whose payload value under Key equals Value.
type Equals struct {
	Key   string
	Value any
}

// AnyOf matches points whose payload value under Key equals any of Values.
type AnyOf struct {
	Key    string
	Values []any
}

// And is the conjunction of its clauses.
type And struct {
	Clauses []Filter
}

func (Equals) isFilter() {}
func (AnyOf) isFilter()  {}
func (And) isFilter()    {}

func (f Equals) Validate() error {
	if f.Key == "" {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "filter: equals clause requires a key")
	}
	return nil
}

func (f AnyOf) Validate() error {
	if f.Key == "" {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "filter: any-of clause requires a key")
	}
	if len(f.Values) == 0 {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "filter: any-of clause requires at least one value",
			docragerr.Field("key", f.Key))
	}
	return nil
}

func (f And) Validate() error {
	if len(f.Clauses) == 0 {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "filter: conjunction requires at least one clause")
	}
	for _, c := range f.Clauses {
		if c == nil {
			return docragerr.New(docragerr.CodeStoreFilterInvalid, "filter: conjunction contains a nil clause")
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BySource matches every point ingested from the given source document.
func BySource(source string) Filter {
	return Equals{Key: PayloadSource, Value: source}
}
