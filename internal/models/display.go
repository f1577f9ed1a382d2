package models

// Glyphs are the importance markers recognised in and written to lines.
type Glyphs struct {
	Low    string `yaml:"low"`
	Normal string `yaml:"normal"`
	High   string `yaml:"high"`
}

// For returns the glyph for an importance level.
func (g Glyphs) For(imp Importance) string {
	switch imp {
	case ImportanceLow:
		return g.Low
	case ImportanceHigh:
		return g.High
	default:
		return g.Normal
	}
}

// StatusSymbols are the characters written between the checkbox brackets.
type StatusSymbols struct {
	NotStarted string `yaml:"not_started"`
	InProgress string `yaml:"in_progress"`
	Completed  string `yaml:"completed"`
}

// DefaultStatusSymbols mirrors the usual Markdown task list notation.
func DefaultStatusSymbols() StatusSymbols {
	return StatusSymbols{NotStarted: " ", InProgress: "/", Completed: "x"}
}

// For returns the symbol for a status; unset renders as not started.
func (s StatusSymbols) For(st Status) string {
	switch st.Effective() {
	case StatusInProgress:
		return s.InProgress
	case StatusCompleted:
		return s.Completed
	default:
		return s.NotStarted
	}
}

// Lookup maps a checkbox character back to a status.
func (s StatusSymbols) Lookup(c string) Status {
	switch {
	case c == "x" || c == "X" || (c == s.Completed && c != ""):
		return StatusCompleted
	case c != "" && c == s.InProgress && c != s.NotStarted:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}
