// Package idgen generates content ids for the store.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// ContentID returns a fresh UUIDv4 with hyphens stripped and lowercased: a
// 32-character hex string. It doubles as the content id's filesystem
// directory name, so no separator or casing variance is tolerated.
func ContentID() string {
	id := uuid.New() // uuid.New is v4
	return strings.ToLower(strings.ReplaceAll(id.String(), "-", ""))
}
