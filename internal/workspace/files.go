// Package workspace provides the project context capabilities: file listing
// for the project map, recursive directory collection for @dir references,
// and bounded text search across the tree. Hidden files, VCS metadata and
// common build output directories are always excluded, and binary files are
// skipped via a null-byte sniff of the first kilobyte.
package workspace

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ignoredDirs = map[string]bool{
	".git":          true,
	"venv":          true,
	"node_modules":  true,
	"__pycache__":   true,
	".pytest_cache": true,
	".vscode":       true,
	"dist":          true,
	"build":         true,
	"vendor":        true,
}

func skipDir(name string) bool {
	return ignoredDirs[name] || strings.HasPrefix(name, ".")
}

// IsBinary sniffs the first 1KB of a file for a null byte.
func IsBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

// Listing returns the relative paths of every visible file under root,
// sorted, one per line. Used for the project map in plan mode and for
// @-completion.
func Listing(root string) (string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)
	return strings.Join(paths, "\n"), nil
}

// File is one collected file with either its content or a read error.
type File struct {
	Path    string
	Content string
	Err     string
}

// Collect reads every visible text file under dir recursively. Unreadable
// and binary files are skipped rather than failing the collection.
func Collect(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if IsBinary(path) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files = append(files, File{Path: abs, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", dir, err)
	}
	return files, nil
}
