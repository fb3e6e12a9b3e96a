package build

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conneroisu/burrow/internal/watcher"
)

// Source is a content page found on disk.
type Source struct {
	// Name is the slash-separated path relative to the content root,
	// without extension. It is also the page's URL path.
	Name string `json:"name"`
	Path string `json:"path"`
}

// Scan lists the pages under root sorted by name. Hidden files and
// directories are skipped. When name.mdx and name.md both exist the .mdx
// file wins. A missing root yields no pages.
func Scan(root string) ([]Source, error) {
	byName := make(map[string]Source)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !watcher.ContentFilter(p) || !watcher.NoHiddenFilter(p) {
			return nil
		}

		name, ok := PageName(root, p)
		if !ok {
			return nil
		}
		if prev, seen := byName[name]; seen && strings.EqualFold(filepath.Ext(prev.Path), ".mdx") {
			return nil
		}
		byName[name] = Source{Name: name, Path: p}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sources := make([]Source, 0, len(byName))
	for _, src := range byName {
		sources = append(sources, src)
	}
	slices.SortFunc(sources, func(a, b Source) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sources, nil
}

// PageName maps a file under root to its page name.
func PageName(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel)), true
}
