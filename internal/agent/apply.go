package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Change is one proposed file edit. An empty Original means the edited
// content replaces the file wholesale (or creates it).
type Change struct {
	File     string `json:"file"`
	Original string `json:"original"`
	Edited   string `json:"edited"`
}

// IsCreate reports whether the change writes a file from scratch.
func (c Change) IsCreate() bool { return c.Original == "" }

// MismatchError means a change's original snippet was not found in the
// target file, so the edit could not be anchored.
type MismatchError struct {
	File string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Mismatch in %s", e.File)
}

// ApplyChanges writes each change to disk in order, stopping at the first
// failure. Parent directories are created as needed. Anchored edits replace
// the first occurrence of the original snippet only.
func ApplyChanges(changes []Change) error {
	for _, c := range changes {
		if err := applyOne(c); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(c Change) error {
	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", c.File, err)
	}

	// A missing file is a create; any other read failure must not degrade
	// an anchored edit into a full overwrite.
	content := c.Edited
	existing, err := os.ReadFile(c.File)
	switch {
	case err == nil:
		if c.Original != "" {
			text := string(existing)
			if !strings.Contains(text, c.Original) {
				return &MismatchError{File: c.File}
			}
			content = strings.Replace(text, c.Original, c.Edited, 1)
		}
	case os.IsNotExist(err):
		// create with Edited, Original ignored
	default:
		return fmt.Errorf("read %s: %w", c.File, err)
	}

	if err := os.WriteFile(c.File, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", c.File, err)
	}
	return nil
}
