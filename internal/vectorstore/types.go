// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

// Distance is the similarity metric a collection is created with.
// For Cosine and Dot a higher score means more similar.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// Valid reports whether d names a supported metric.
func (d Distance) Valid() bool {
	switch d {
	case DistanceCosine, DistanceDot, DistanceEuclid:
		return true
	}
	return false
}

// Point is one stored vector plus its payload. ID is derived
// deterministically by the caller so re-ingesting the same source
// overwrites rather than duplicates (upsert semantics).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Result is one similarity-search hit, ordered by descending score.
// Results are returned unfiltered by score; thresholding belongs to
// the retrieval layer.
type Result struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// CollectionStats is a point-in-time snapshot of one collection.
type CollectionStats struct {
	Name       string   `json:"name"`
	Dimensions int      `json:"dimensions"`
	Distance   Distance `json:"distance"`
	Points     int64    `json:"points"`
}
