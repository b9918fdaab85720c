// Package fileid derives stable source ids for materials ingested from files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "file-"

// SourceID returns the material source id for path. Paths are cleaned first, so
// "/a/./b" and "/a/b/" share an id with "/a/b".
func SourceID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(sum[:12])
}

// Resolve makes path absolute and returns it together with its source id.
func Resolve(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("absolute path: %w", err)
	}
	return abs, SourceID(abs), nil
}
