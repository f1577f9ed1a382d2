package parser

import (
	"testing"
)

func TestParseNote_FrontmatterTitle(t *testing.T) {
	input := []byte("---\ntitle: Groceries\n---\n# Heading\n- [ ] Milk ^ab00001\n")
	n := ParseNote("lists/shop.md", input)
	if n.Title != "Groceries" {
		t.Errorf("title = %q, want %q", n.Title, "Groceries")
	}
	if n.BodyOffset != 3 {
		t.Errorf("body offset = %d, want 3", n.BodyOffset)
	}
	if n.Body != "# Heading\n- [ ] Milk ^ab00001\n" {
		t.Errorf("body = %q", n.Body)
	}
}

func TestParseNote_HeadingAndStemFallback(t *testing.T) {
	n := ParseNote("daily/2024-05-01.md", []byte("intro\n# Plan\nmore"))
	if n.Title != "Plan" {
		t.Errorf("title = %q, want Plan", n.Title)
	}
	n = ParseNote("daily/2024-05-01.md", []byte("no heading here"))
	if n.Title != "2024-05-01" {
		t.Errorf("title = %q, want file stem", n.Title)
	}
}

func TestParseNote_InvalidYAMLFallback(t *testing.T) {
	n := ParseNote("x.md", []byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if n.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if n.BodyOffset != 0 {
		t.Errorf("body offset = %d, want 0", n.BodyOffset)
	}
}

func TestParseNote_RefsUseFileLineNumbers(t *testing.T) {
	input := []byte("---\ntitle: T\n---\n- [x] **Call** Bob ^k300002\nplain line\n  - [ ] child ^zz00003\n")
	n := ParseNote("t.md", input)
	if len(n.Refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(n.Refs))
	}
	if n.Refs[0].Token != "k300002" || n.Refs[0].Line != 3 || n.Refs[0].Title != "Call Bob" {
		t.Errorf("ref[0] = %+v", n.Refs[0])
	}
	if n.Refs[1].Token != "zz00003" || n.Refs[1].Line != 5 {
		t.Errorf("ref[1] = %+v", n.Refs[1])
	}
}

func TestFileStem(t *testing.T) {
	cases := map[string]string{
		"a/b/c.md":    "c",
		"note.md":     "note",
		"dir\\win.md": "win",
		"":            "",
	}
	for in, want := range cases {
		if got := FileStem(in); got != want {
			t.Errorf("FileStem(%q) = %q, want %q", in, got, want)
		}
	}
}
