package storage

import (
	"github.com/google/uuid"
)

// DeriveCopyKey builds the destination key for a store-level copy. Keys have
// the form "<uuid>-<original-name>"; the copy keeps the original-name suffix
// under a fresh uuid so the new blob never collides with the source. A key
// without the expected prefix is reused whole as the suffix.
func DeriveCopyKey(sourceKey string) string {
	name := sourceKey
	if len(sourceKey) > 37 && sourceKey[36] == '-' {
		if _, err := uuid.Parse(sourceKey[:36]); err == nil {
			name = sourceKey[37:]
		}
	}
	return uuid.NewString() + "-" + name
}
