package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mavrk/pilot/internal/workspace"
)

// DefaultHistoryLimit bounds how many session entries are injected into
// each task.
const DefaultHistoryLimit = 40

// HistorySource provides the bounded, newest-last session transcript.
type HistorySource interface {
	Inject(ctx context.Context, limit int) (string, error)
}

// Builder turns raw instruction text into a Task. @path tokens are expanded
// inline: files have their content spliced into the instruction and attached
// as context, directories are collected recursively with binary files
// skipped. Tokens whose path does not exist are left untouched.
type Builder struct {
	Root         string
	History      HistorySource
	HistoryLimit int
}

func NewBuilder(root string, history HistorySource) *Builder {
	if root == "" {
		root = "."
	}
	return &Builder{Root: root, History: history, HistoryLimit: DefaultHistoryLimit}
}

func (b *Builder) Build(ctx context.Context, text string, planOnly, fast bool, mission *MissionContext) (*Task, error) {
	instruction, contextFiles := b.expandReferences(text)

	history := ""
	if b.History != nil {
		limit := b.HistoryLimit
		if limit == 0 {
			limit = DefaultHistoryLimit
		}
		injected, err := b.History.Inject(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("inject session history: %w", err)
		}
		history = injected
	}

	mode := "apply"
	var projectMap string
	if planOnly {
		mode = "plan"
		listing, err := workspace.Listing(b.Root)
		if err != nil {
			return nil, fmt.Errorf("build project map: %w", err)
		}
		projectMap = listing
	}

	return &Task{
		Mode:           mode,
		Fast:           fast,
		Instruction:    instruction,
		RawInput:       text,
		ContextFiles:   contextFiles,
		SessionHistory: history,
		MissionData:    mission,
		ProjectMap:     projectMap,
	}, nil
}

func (b *Builder) expandReferences(text string) (string, []ContextFile) {
	words := strings.Fields(text)
	parts := make([]string, 0, len(words))
	var contextFiles []ContextFile

	for _, word := range words {
		if !strings.HasPrefix(word, "@") || len(word) == 1 {
			parts = append(parts, word)
			continue
		}
		path := word[1:]
		info, err := os.Stat(path)
		if err != nil {
			parts = append(parts, word)
			continue
		}

		var body string
		if info.IsDir() {
			body, contextFiles = b.collectDir(path, contextFiles)
		} else {
			body, contextFiles = b.readFile(path, contextFiles)
		}
		parts = append(parts, fmt.Sprintf("\n--- %s CONTENT ---\n%s\n--- END %s CONTENT ---\n", word, body, word))
	}
	return strings.Join(parts, " "), contextFiles
}

func (b *Builder) readFile(path string, contextFiles []ContextFile) (string, []ContextFile) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	content, err := os.ReadFile(path)
	if err != nil {
		msg := fmt.Sprintf("Failed to read file: %v", err)
		return msg, append(contextFiles, ContextFile{Path: abs, Err: msg})
	}
	return string(content), append(contextFiles, ContextFile{Path: abs, Content: string(content)})
}

func (b *Builder) collectDir(dir string, contextFiles []ContextFile) (string, []ContextFile) {
	files, err := workspace.Collect(dir)
	if err != nil {
		msg := fmt.Sprintf("Failed to list directory: %v", err)
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			abs = dir
		}
		return msg, append(contextFiles, ContextFile{Path: abs, Err: msg})
	}
	if len(files) == 0 {
		return "(empty or ignored directory)", contextFiles
	}
	var sb strings.Builder
	for _, f := range files {
		contextFiles = append(contextFiles, ContextFile{Path: f.Path, Content: f.Content})
		fmt.Fprintf(&sb, "\nFILE: %s\n%s\n", f.Path, f.Content)
	}
	return sb.String(), contextFiles
}
