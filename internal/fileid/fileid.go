// Package fileid derives stable record source keys from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "file:"

// SourceKey returns the source key for the file at path.
// Same path always yields the same key.
func SourceKey(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// RowKey returns the source key for row n of a multi-record file.
// Row 0 is the file key itself, so single-record files keep a plain key.
func RowKey(absolutePath string, n int) string {
	if n == 0 {
		return SourceKey(absolutePath)
	}
	return SourceKey(absolutePath) + "#" + strconv.Itoa(n)
}

// Pattern returns a LIKE pattern matching every key derived from the file.
func Pattern(absolutePath string) string {
	return SourceKey(absolutePath) + "%"
}

// IsFileKey reports whether key was derived from a file path.
func IsFileKey(key string) bool {
	return strings.HasPrefix(key, prefix)
}
