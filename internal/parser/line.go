package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/tasklink/internal/models"
)

// DefaultBodyFormat is the body a freshly parsed line carries until a
// richer caller replaces it. The single verb receives the file name.
const DefaultBodyFormat = "Created in [[%s]]"

// Resolver maps a block link token to a remote record id.
type Resolver interface {
	Resolve(token string) (string, bool)
}

// Options configures ParseLine.
type Options struct {
	Glyphs   models.Glyphs
	Symbols  models.StatusSymbols
	Resolver Resolver
	FileName string
	// BodyFormat overrides DefaultBodyFormat when non-empty.
	BodyFormat string
}

var (
	blockLinkRe = regexp.MustCompile(`\^([A-Za-z0-9]+)$`)
	// A checkbox counts only when nothing but quote and list markers
	// precede it.
	checkboxRe  = regexp.MustCompile(`^(\s*(?:>\s*)*(?:#+\s+)?(?:(?:[-*+]|\d+[.)])\s+)?)\[([^\[\]]?)\]`)
	structureRe = regexp.MustCompile(`^(?:[-*+]\s+|\d+[.)]\s+|>\s*|#+\s+)`)
)

// ParseLine decomposes one Markdown line into a task. It never fails:
// every field has a default when its marker is absent or malformed.
//
// Rules run in a fixed order, each working on the remainder of the previous
// one: block link, registry lookup, checkbox, importance, structure.
func ParseLine(line string, opts Options) *models.Task {
	t := &models.Task{
		Importance: models.ImportanceNormal,
		FileName:   opts.FileName,
	}

	rest, token := extractBlockLink(line)
	if token != "" {
		t.BlockLink = token
		if opts.Resolver != nil {
			if id, ok := opts.Resolver.Resolve(token); ok {
				t.RemoteID = id
			}
		}
	}

	rest, box := extractCheckbox(rest)
	if box != nil {
		t.Status = opts.Symbols.Lookup(*box)
	}

	rest, t.Importance = extractImportance(rest, opts.Glyphs)

	t.Title, _ = stripStructure(rest)

	format := opts.BodyFormat
	if format == "" {
		format = DefaultBodyFormat
	}
	t.SetBody(fmt.Sprintf(format, opts.FileName))
	return t
}

// extractBlockLink removes a trailing ^token from the trimmed line. An
// escaped \^word is title text: the backslash is dropped and no token is
// returned.
func extractBlockLink(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	loc := blockLinkRe.FindStringSubmatchIndex(trimmed)
	if loc == nil {
		return trimmed, ""
	}
	if loc[0] > 0 && trimmed[loc[0]-1] == '\\' {
		return trimmed[:loc[0]-1] + trimmed[loc[0]:], ""
	}
	return strings.TrimSpace(trimmed[:loc[0]]), trimmed[loc[2]:loc[3]]
}

// EscapeCaret backslash-escapes a trailing ^word so the line does not read
// as carrying a block link.
func EscapeCaret(s string) string {
	loc := blockLinkRe.FindStringIndex(s)
	if loc == nil || (loc[0] > 0 && s[loc[0]-1] == '\\') {
		return s
	}
	return s[:loc[0]] + `\` + s[loc[0]:]
}

// extractCheckbox removes a leading [c] group, keeping whatever list or
// quote markers came before it. The returned pointer is nil when no
// checkbox was found.
func extractCheckbox(s string) (string, *string) {
	m := checkboxRe.FindStringSubmatchIndex(s)
	if m == nil {
		return s, nil
	}
	c := s[m[4]:m[5]]
	return s[m[2]:m[3]] + strings.TrimLeft(s[m[1]:], " \t"), &c
}

// extractImportance looks for configured glyphs anywhere in s. High wins
// over low when both appear. Matched glyphs are removed.
func extractImportance(s string, g models.Glyphs) (string, models.Importance) {
	imp := models.ImportanceNormal
	hasLow := g.Low != "" && strings.Contains(s, g.Low)
	hasHigh := g.High != "" && strings.Contains(s, g.High)
	switch {
	case hasHigh:
		imp = models.ImportanceHigh
	case hasLow:
		imp = models.ImportanceLow
	}
	for _, glyph := range []string{g.High, g.Low, g.Normal} {
		if glyph != "" && strings.TrimSpace(glyph) != "" {
			s = strings.ReplaceAll(s, glyph, " ")
		}
	}
	return s, imp
}

// stripStructure removes leading list, quote and heading markers and all
// bold markers, then normalises whitespace.
func stripStructure(s string) (string, bool) {
	stripped := false
	s = strings.TrimSpace(s)
	for {
		loc := structureRe.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = strings.TrimSpace(s[loc[1]:])
		stripped = true
	}
	if strings.Contains(s, "*") {
		s = strings.ReplaceAll(s, "*", "")
		stripped = true
	}
	return strings.Join(strings.Fields(s), " "), stripped
}
