package workspace

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxSearchResults caps project search output so a loose pattern cannot
// flood the model context.
const MaxSearchResults = 50

// Search scans every visible text file under root for the pattern,
// interpreted as a case-insensitive regular expression when it compiles and
// as a literal substring otherwise. Output is "path:line: text" per match,
// truncated at MaxSearchResults.
func Search(root, pattern string) string {
	var re *regexp.Regexp
	if compiled, err := regexp.Compile("(?i)" + pattern); err == nil {
		re = compiled
	}
	lowered := strings.ToLower(pattern)

	var results []string
	truncated := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		if strings.HasPrefix(name, ".") || IsBinary(path) {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			matched := false
			if re != nil {
				matched = re.MatchString(line)
			} else {
				matched = strings.Contains(strings.ToLower(line), lowered)
			}
			if !matched {
				continue
			}
			results = append(results, fmt.Sprintf("%s:%d: %s", rel, lineNo, line))
			if len(results) >= MaxSearchResults {
				truncated = true
				return filepath.SkipAll
			}
		}
		return nil
	})

	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", pattern)
	}
	out := strings.Join(results, "\n")
	if truncated {
		out += "\n... (truncated)"
	}
	return out
}
