package parser

import (
	"testing"

	"github.com/starford/tasklink/internal/models"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(token string) (string, bool) {
	id, ok := m[token]
	return id, ok
}

func testOptions() Options {
	return Options{
		Glyphs:   models.Glyphs{Low: "🔽", High: "🔼"},
		Symbols:  models.DefaultStatusSymbols(),
		FileName: "Inbox",
	}
}

func TestParseLine_AllMarkers(t *testing.T) {
	task := ParseLine("- [x] Buy milk 🔼 ^ab12", testOptions())
	if task.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if task.Importance != models.ImportanceHigh {
		t.Errorf("importance = %q, want high", task.Importance)
	}
	if task.BlockLink != "ab12" {
		t.Errorf("block link = %q, want ab12", task.BlockLink)
	}
	if task.Title != "Buy milk" {
		t.Errorf("title = %q, want %q", task.Title, "Buy milk")
	}
	if task.RemoteID != "" {
		t.Errorf("remote id = %q without resolver", task.RemoteID)
	}
}

func TestParseLine_ResolvesRemoteID(t *testing.T) {
	opts := testOptions()
	opts.Resolver = mapResolver{"ab12": "AAMk-1"}

	task := ParseLine("- [ ] Linked ^ab12", opts)
	if task.RemoteID != "AAMk-1" || !task.Linked() {
		t.Errorf("remote id = %q, linked = %v", task.RemoteID, task.Linked())
	}

	task = ParseLine("- [ ] Orphan ^zz99", opts)
	if task.RemoteID != "" || task.Linked() {
		t.Errorf("unresolved token should not link, got %q", task.RemoteID)
	}
	if !task.HasBlockLink() {
		t.Error("token should still be recorded")
	}
}

func TestParseLine_Defaults(t *testing.T) {
	task := ParseLine("just some prose", testOptions())
	if task.Status != models.StatusUnset || task.Status.Effective() != models.StatusNotStarted {
		t.Errorf("status = %q", task.Status)
	}
	if task.Importance != models.ImportanceNormal {
		t.Errorf("importance = %q", task.Importance)
	}
	if task.Title != "just some prose" {
		t.Errorf("title = %q", task.Title)
	}
	if task.Body.Content != "Created in [[Inbox]]" || task.Body.ContentType != "text" {
		t.Errorf("body = %+v", task.Body)
	}
}

func TestParseLine_StatusSymbols(t *testing.T) {
	cases := []struct {
		line string
		want models.Status
	}{
		{"- [ ] a", models.StatusNotStarted},
		{"- [] a", models.StatusNotStarted},
		{"- [x] a", models.StatusCompleted},
		{"- [X] a", models.StatusCompleted},
		{"- [/] a", models.StatusInProgress},
		{"- [?] a", models.StatusNotStarted},
		{"> - [x] quoted", models.StatusCompleted},
		{"[x] bare", models.StatusCompleted},
	}
	for _, c := range cases {
		if got := ParseLine(c.line, testOptions()).Status; got != c.want {
			t.Errorf("ParseLine(%q).Status = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestParseLine_BracketInProseIsNotCheckbox(t *testing.T) {
	task := ParseLine("- Read chapter [x] later", testOptions())
	if task.Status != models.StatusUnset {
		t.Errorf("status = %q, want unset", task.Status)
	}
	if task.Title != "Read chapter [x] later" {
		t.Errorf("title = %q", task.Title)
	}
}

func TestParseLine_OnlyFinalCaretCounts(t *testing.T) {
	task := ParseLine("- [ ] 2^10 is 1024 ^tok1", testOptions())
	if task.BlockLink != "tok1" {
		t.Errorf("block link = %q", task.BlockLink)
	}
	if task.Title != "2^10 is 1024" {
		t.Errorf("title = %q", task.Title)
	}

	task = ParseLine("- [ ] x^2 then more", testOptions())
	if task.BlockLink != "" {
		t.Errorf("caret in prose picked up as %q", task.BlockLink)
	}
}

func TestParseLine_EscapedCaret(t *testing.T) {
	task := ParseLine(`- [ ] pay \^rent`, testOptions())
	if task.BlockLink != "" || task.Title != "pay ^rent" {
		t.Errorf("task = %+v", task)
	}
	if got := EscapeCaret("pay ^rent"); got != `pay \^rent` {
		t.Errorf("EscapeCaret = %q", got)
	}
	if got := EscapeCaret(`pay \^rent`); got != `pay \^rent` {
		t.Errorf("EscapeCaret escaped twice: %q", got)
	}
}

func TestParseLine_StructuralMarkers(t *testing.T) {
	cases := map[string]string{
		"## Heading task":           "Heading task",
		"> quoted task":             "quoted task",
		"* bullet **bold** task":    "bullet bold task",
		"- [ ] **Important** thing": "Important thing",
		"1. numbered":               "numbered",
	}
	for line, want := range cases {
		if got := ParseLine(line, testOptions()).Title; got != want {
			t.Errorf("ParseLine(%q).Title = %q, want %q", line, got, want)
		}
	}
}

func TestParseLine_ImportancePrecedence(t *testing.T) {
	task := ParseLine("- [ ] both 🔽 and 🔼", testOptions())
	if task.Importance != models.ImportanceHigh {
		t.Errorf("importance = %q, want high", task.Importance)
	}
	if task.Title != "both and" {
		t.Errorf("title = %q", task.Title)
	}

	task = ParseLine("- [ ] later 🔽", testOptions())
	if task.Importance != models.ImportanceLow {
		t.Errorf("importance = %q, want low", task.Importance)
	}
}

// Substring matching means a glyph that is also an ordinary word marks the
// task. This pins that behaviour down.
func TestParseLine_GlyphAsTitleWord(t *testing.T) {
	opts := testOptions()
	opts.Glyphs.High = "!!"
	task := ParseLine("- [ ] Shout hello!! at the wall", opts)
	if task.Importance != models.ImportanceHigh {
		t.Errorf("importance = %q, want high", task.Importance)
	}
	if task.Title != "Shout hello at the wall" {
		t.Errorf("title = %q", task.Title)
	}
}

func TestParseLine_CustomBodyFormat(t *testing.T) {
	opts := testOptions()
	opts.BodyFormat = "from %s"
	if got := ParseLine("x", opts).Body.Content; got != "from Inbox" {
		t.Errorf("body = %q", got)
	}
}
