// Package validation checks untrusted input: content paths, page names,
// remote source URLs and browser origins.
package validation

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for paths with a ".." segment.
var ErrPathTraversal = stderrors.New("path traversal")

// ValidatePath checks a filesystem path supplied by configuration or a
// caller and returns it cleaned. It rejects empty paths, NUL bytes and ".."
// segments.
func ValidatePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path %q contains a NUL byte", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid path %q: %w", path, ErrPathTraversal)
		}
	}
	return filepath.Clean(path), nil
}

// ValidatePageName checks a slash-separated page name taken from a URL. It
// must be relative, free of empty, "." and ".." segments, and must not name
// a hidden file or directory.
func ValidatePageName(name string) error {
	if name == "" {
		return fmt.Errorf("page name cannot be empty")
	}
	if strings.HasPrefix(name, "/") || strings.ContainsAny(name, "\\\x00") {
		return fmt.Errorf("page name %q must be a relative slash-separated path", name)
	}
	for _, part := range strings.Split(name, "/") {
		switch {
		case part == "" || part == ".":
			return fmt.Errorf("page name %q has an empty segment", name)
		case part == "..":
			return fmt.Errorf("page name %q: %w", name, ErrPathTraversal)
		case strings.HasPrefix(part, "."):
			return fmt.Errorf("page name %q refers to a hidden file", name)
		}
	}
	return nil
}

// IsHidden reports whether the last element of path is a dotfile or an
// editor backup.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}
