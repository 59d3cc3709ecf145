// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

import (
	"math"

	docragerr "github.com/docrag/docrag/pkg/errors"
)

// ValidateBatch checks a write batch before any network call. It
// returns the batch's uniform dimension, or 0 for an empty batch
// (which callers treat as a silent no-op).
func ValidateBatch(points []Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	dims := len(points[0].Vector)
	for _, p := range points {
		if p.ID == "" {
			return 0, docragerr.New(docragerr.CodeStoreBatchInvalid, "batch contains a point without an id")
		}
		if len(p.Vector) == 0 {
			return 0, docragerr.New(docragerr.CodeStoreBatchInvalid, "batch contains a point without a vector",
				docragerr.Field("id", p.ID))
		}
		if len(p.Vector) != dims {
			return 0, docragerr.New(docragerr.CodeStoreBatchInvalid, "batch mixes vector dimensions",
				docragerr.Field("id", p.ID),
				docragerr.Field("want", dims),
				docragerr.Field("got", len(p.Vector)))
		}
		if err := ValidateVector(p.Vector); err != nil {
			return 0, docragerr.With(err, docragerr.Field("id", p.ID))
		}
	}
	return dims, nil
}

// ValidateVector rejects vectors carrying NaN or Inf entries.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return docragerr.New(docragerr.CodeStoreVectorInvalid, "vector is empty")
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return docragerr.New(docragerr.CodeStoreVectorInvalid, "vector contains a non-finite value",
				docragerr.Field("index", i))
		}
	}
	return nil
}
