// Package render turns tasks back into Markdown.
package render

import (
	"strings"

	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/parser"
)

// Template placeholders.
const (
	PlaceholderTask       = "{{TASK}}"
	PlaceholderStatus     = "{{STATUS_SYMBOL}}"
	PlaceholderImportance = "{{IMPORTANCE}}"
)

// DefaultTemplate renders a Markdown task list item.
const DefaultTemplate = "- [" + PlaceholderStatus + "] " + PlaceholderTask + " " + PlaceholderImportance

const indent = "  "

// Options configures Task rendering.
type Options struct {
	Template string
	Symbols  models.StatusSymbols
	Glyphs   models.Glyphs
}

// Task renders t as a single Markdown line and, unless singleLine is set,
// the indented body and checklist lines that follow it.
func Task(t *models.Task, opts Options, singleLine bool) string {
	line := Line(t, opts)
	if singleLine {
		return line
	}

	var b strings.Builder
	b.WriteString(line)
	for _, bodyLine := range strings.Split(t.Body.Content, "\n") {
		bodyLine = strings.TrimRight(bodyLine, "\r")
		if strings.TrimSpace(bodyLine) == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(indent)
		b.WriteString(bodyLine)
	}
	for _, item := range t.ChecklistItems {
		b.WriteString("\n")
		b.WriteString(indent)
		if item.IsChecked {
			b.WriteString("- [x] ")
		} else {
			b.WriteString("- [ ] ")
		}
		b.WriteString(item.DisplayName)
	}
	return b.String()
}

// Line renders only the task line itself, including its block link.
func Line(t *models.Task, opts Options) string {
	tmpl := opts.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	out := strings.ReplaceAll(tmpl, PlaceholderTask, t.Title)
	out = strings.ReplaceAll(out, PlaceholderStatus, opts.Symbols.For(t.Status))

	glyph := opts.Glyphs.For(t.Importance)
	withoutPlaceholder := strings.ReplaceAll(out, PlaceholderImportance, "")
	if strings.Contains(withoutPlaceholder, glyph) {
		out = withoutPlaceholder
	} else {
		out = strings.ReplaceAll(out, PlaceholderImportance, glyph)
	}

	out = strings.TrimRight(out, " \t")
	if t.BlockLink == "" {
		// A title ending in ^word would read back as a block link.
		return parser.EscapeCaret(out)
	}
	out += " ^" + t.BlockLink
	return out
}
