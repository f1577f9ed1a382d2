package parser

import "strings"

// childPrefix marks a direct child checklist line under a task.
const childPrefix = "  - ["

// Section is a top-level task line plus the indented lines that belong to it.
type Section struct {
	// Start is the index of the task line; End the index of the last line
	// belonging to the section (End == Start when it has no body).
	Start    int
	End      int
	Body     string
	Children []string
}

// ScanSection collects the body and child checklist lines that follow the
// task at lines[start]. The section ends before the first zero-length line
// after start, or at the end of the document. A lone carriage return left by
// a CRLF split counts as zero-length; lines that hold only spaces do not end
// a section. Deeper indentation is folded into the body.
func ScanSection(lines []string, start int) Section {
	sec := Section{Start: start, End: start}
	if start < 0 || start >= len(lines) {
		return sec
	}

	boundary := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSuffix(lines[i], "\r") == "" {
			boundary = i
			break
		}
	}

	var body strings.Builder
	for _, line := range lines[start+1 : boundary] {
		if strings.HasPrefix(line, childPrefix) {
			sec.Children = append(sec.Children, strings.TrimSpace(line))
			continue
		}
		// Indentation is re-added on render.
		body.WriteString(strings.TrimSpace(line))
		body.WriteString("\n")
	}
	sec.Body = body.String()
	sec.End = boundary - 1
	return sec
}
