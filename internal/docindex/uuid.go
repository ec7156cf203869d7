package docindex

import (
	"fmt"

	"github.com/google/uuid"
)

// chunkEngineID derives the engine document id for one chunk. It is a
// deterministic v5-style UUID (SHA1 over a namespace and the document
// id/chunk index pair), so re-indexing the same chunk always produces the
// same engine id and a PUT is a true replace rather than an append. Mirrors
// the uuid.NewSHA1 technique this codebase already uses for deterministic
// vector-store point ids.
func chunkEngineID(documentID string, chunkID int) string {
	name := fmt.Sprintf("%s__%d", documentID, chunkID)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
