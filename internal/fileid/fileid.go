// Package fileid derives stable profile ids for imported résumé files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Prefix marks ids that were derived from a file path.
const Prefix = "resume-"

// ResumeID returns a stable profile id for the résumé at path. The same
// cleaned path always yields the same id, so re-imports update in place and
// deletions can be mapped back to the profile.
func ResumeID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return Prefix + hex.EncodeToString(hash[:12])
}
