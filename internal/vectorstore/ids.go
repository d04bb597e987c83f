package vectorstore

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:nutrition-rag:chunk"))

// ChunkID derives a stable UUIDv5 from a chunk's page and text. Re-ingesting
// unchanged content yields the same IDs regardless of row order.
func ChunkID(page int, text string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(strconv.Itoa(page)+"|"+text)).String()
}
