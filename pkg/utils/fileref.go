// Package utils holds small shared helpers.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// NormalizeFileRef rewrites a media reference into a form OneBot peers
// accept. URL-like references (http, https, base64, file schemes) pass
// through untouched; local filesystem paths become file:// URIs with an
// absolute path.
func NormalizeFileRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ref
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"http://", "https://", "base64://", "file://"} {
		if strings.HasPrefix(lower, scheme) {
			return ref
		}
	}
	if filepath.IsAbs(ref) {
		return "file://" + filepath.ToSlash(ref)
	}
	if _, err := os.Stat(ref); err == nil {
		if abs, err := filepath.Abs(ref); err == nil {
			return "file://" + filepath.ToSlash(abs)
		}
	}
	return ref
}
