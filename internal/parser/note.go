// Package parser turns Markdown notes and task lines into domain values.
package parser

import (
	"bytes"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/tasklink/internal/models"
)

// Note holds the output of parsing a whole Markdown note.
type Note struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	// BodyOffset is the number of lines consumed by front matter, so that
	// Refs line numbers index into the original file.
	BodyOffset int
	Refs       []models.BlockRef
}

// ParseNote extracts front matter, title and block link references from raw
// Markdown bytes. notePath is the vault-relative path of the note.
func ParseNote(notePath string, data []byte) *Note {
	fm, body, offset := splitFrontmatter(data)
	n := &Note{
		Frontmatter: fm,
		Body:        body,
		BodyOffset:  offset,
		Title:       deriveTitle(fm, body, notePath),
	}
	n.Refs = extractRefs(notePath, strings.Split(string(data), "\n"))
	return n
}

// splitFrontmatter separates YAML front matter (between leading --- lines)
// from the body. Invalid or unterminated front matter is treated as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int) {
	const delim = "---"
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, string(data), 0
	}

	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), 0
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	afterDelim = bytes.TrimPrefix(afterDelim, []byte("\n"))

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), 0
	}

	offset := bytes.Count(data[:len(data)-len(afterDelim)], []byte("\n"))
	return fm, string(afterDelim), offset
}

// deriveTitle returns the front matter title, then the first H1 heading,
// then the file name without extension.
func deriveTitle(fm map[string]interface{}, body, notePath string) string {
	if fm != nil {
		if t, ok := fm["title"].(string); ok && t != "" {
			return t
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return FileStem(notePath)
}

// FileStem returns the base name of p without its extension.
func FileStem(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// extractRefs records every line of the note that ends in a block link.
func extractRefs(notePath string, lines []string) []models.BlockRef {
	var out []models.BlockRef
	for i, line := range lines {
		rest, token := extractBlockLink(line)
		if token == "" {
			continue
		}
		out = append(out, models.BlockRef{
			Token: token,
			Path:  notePath,
			Line:  i,
			Title: cleanTitle(rest),
		})
	}
	return out
}

// cleanTitle applies the checkbox and structural rules for display purposes.
func cleanTitle(s string) string {
	s, _ = extractCheckbox(s)
	s, _ = stripStructure(s)
	return s
}
