package dynamicmap

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a random six character id, prefixed with prefix and a
// dash when prefix is set, e.g. "map-3f9a1c".
func GenerateID(prefix string) string {
	hash := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	if prefix == "" {
		return hash
	}
	return prefix + "-" + hash
}
