// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package retrieval

import (
	"fmt"

	"github.com/google/uuid"
)

// idNamespace scopes point ids to this system. Derived from a fixed
// name so it is stable across processes and versions.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("docrag.point"))

// PointID derives the stored-point id for one chunk. The id is a SHA-1
// UUID over (source, chunk index), so re-ingesting a source overwrites
// the same points instead of leaking duplicates, and the UUID shape
// satisfies backends that reject arbitrary id strings.
func PointID(source string, chunkIndex int) string {
	name := fmt.Sprintf("%s\x00%d", source, chunkIndex)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
