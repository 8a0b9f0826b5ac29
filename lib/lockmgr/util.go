package lockmgr

import (
	"github.com/google/uuid"
)

// generateOwnerID creates a new unique owner ID (a random v4 UUID)
func generateOwnerID() []byte {
	id := uuid.New()
	return id[:]
}
