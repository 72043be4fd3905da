package localdisk

import (
	"path/filepath"
	"strings"

	"github.com/illarion/cloudvault/storage"
)

// validateID rejects ids that are empty, escape the root, name a nested
// path or collide with in-flight temp files
func validateID(id string) error {
	if id == "" {
		return storage.InvalidID(id, "empty id")
	}

	// Use filepath.IsLocal for initial validation
	// This rejects absolute paths, escaping paths, reserved names, etc.
	if !filepath.IsLocal(id) {
		if filepath.IsAbs(id) {
			return storage.InvalidID(id, "absolute paths are not allowed")
		}
		return storage.InvalidID(id, "path escapes storage root")
	}

	if strings.ContainsAny(id, `/\`) || id != filepath.Clean(id) {
		return storage.InvalidID(id, "nested paths are not supported")
	}
	if strings.HasPrefix(id, tempPrefix) {
		return storage.InvalidID(id, "reserved prefix")
	}
	return nil
}
