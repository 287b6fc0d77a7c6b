package cli

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mavrk/pilot/internal/agent"
)

// Collapse thresholds: diffs with more changed lines than this (or more
// total lines) are summarized instead of printed in full, so large rewrites
// don't flood the terminal.
const (
	maxChangedLines = 5
	maxDiffLines    = 15
	maxNewFileLines = 8
)

var dmp = diffmatchpatch.New()

// renderDiff turns one proposed change into colored terminal output. New
// files print their content (or a summary past the threshold); edits print
// a line diff.
func renderDiff(ch agent.Change) string {
	if ch.IsCreate() {
		return renderNewFile(ch)
	}

	lines := diffLines(ch.Original, ch.Edited)
	changed := 0
	for _, l := range lines {
		if l.kind != ' ' {
			changed++
		}
	}
	if changed == 0 {
		return ""
	}

	header := titleStyle.Render("Diff: " + ch.File)
	if changed > maxChangedLines || len(lines) > maxDiffLines {
		first := ""
		for _, l := range lines {
			if l.kind != ' ' {
				first = string(l.kind) + l.text
				break
			}
		}
		body := fmt.Sprintf("%s\n%s\n%s",
			warnStyle.Render(fmt.Sprintf("Large diff (%d changed lines)", changed)),
			dimStyle.Render("First edit:"),
			first)
		return panelStyle.Render(header + "\n\n" + body)
	}

	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch l.kind {
		case '+':
			sb.WriteString(addedStyle.Render("+" + l.text))
		case '-':
			sb.WriteString(removedStyle.Render("-" + l.text))
		default:
			sb.WriteString(dimStyle.Render(" " + l.text))
		}
	}
	return panelStyle.Render(header + "\n\n" + sb.String())
}

func renderNewFile(ch agent.Change) string {
	header := okStyle.Render("New File: ") + ch.File
	lines := strings.Split(ch.Edited, "\n")
	if len(lines) > maxNewFileLines {
		body := fmt.Sprintf("%s\n%s\n%s",
			warnStyle.Render(fmt.Sprintf("Large new file (%d lines)", len(lines))),
			dimStyle.Render("First line:"),
			lines[0])
		return panelStyle.Render(header + "\n\n" + body)
	}
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(addedStyle.Render("+" + l))
	}
	return panelStyle.Render(header + "\n\n" + sb.String())
}

type diffLine struct {
	kind byte // ' ', '+' or '-'
	text string
}

// diffLines computes a line-level diff via diffmatchpatch's char-line
// reduction, which avoids newline boundary artifacts.
func diffLines(oldText, newText string) []diffLine {
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []diffLine
	for _, d := range diffs {
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = '+'
		case diffmatchpatch.DiffDelete:
			kind = '-'
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, diffLine{kind: kind, text: line})
		}
	}
	return out
}
