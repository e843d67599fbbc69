package phase

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// HashContent computes the blake3 content hash of an artifact body
func HashContent(content string) string {
	hasher := blake3.New()
	hasher.Write([]byte(content))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// GeneratedArtifact is the pre-persistence form of an artifact returned by
// a phase handler
type GeneratedArtifact struct {
	Filename string
	Content  string

	// Reason is recorded on the artifact version for change tracking
	Reason string
}
