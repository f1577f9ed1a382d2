package mcpserver

// LineFormatContract describes how task lines look in notes so that LLM
// consumers can write lines the syncer understands.
const LineFormatContract = `# Tasklink Line Format

A task is a single Markdown list item. tasklink reads it, creates or updates
the matching remote task and writes the line back with a block link.

## Task line

` + "```" + `markdown
- [ ] Buy milk 🔼 ^1a2b00007
` + "```" + `

1. **Checkbox.** ` + "`" + `[ ]` + "`" + ` is not started, ` + "`" + `[/]` + "`" + ` is in progress, ` + "`" + `[x]` + "`" + ` or ` + "`" + `[X]` + "`" + ` is completed.
   A line without a checkbox is still a task; its status is left as is.
2. **Title** is the remaining text after markers, glyphs and block link are removed.
3. **Importance glyphs**: 🔼 marks high importance, 🔽 marks low. When both
   appear, high wins. No glyph means normal.
4. **Block link** ` + "`" + `^xxxxNNNNN` + "`" + ` is the last token on the line: a four character
   prefix and a five digit counter. Never invent one; tasklink mints it when
   the remote task is created. Keep it when editing the line.

## Sections

A task line may be followed by an indented section that ends at the first
empty line:

` + "```" + `markdown
- [ ] Pack for the trip ^1a2b00008
  warm clothes, check the weather
  - [ ] socks
  - [x] charger

` + "```" + `

- Lines starting with two spaces and ` + "`" + `- [` + "`" + ` are checklist items, in order.
- Any other line is part of the task body. Indentation is normalised on write.
- Use the ` + "`" + `sync_section` + "`" + ` tool to push or pull a task with its section;
  ` + "`" + `sync_lines` + "`" + ` syncs only the task lines themselves.

## Rules

1. Line numbers in tool arguments are zero-based.
2. A sync that fails leaves the line untouched; nothing is minted.
3. If the note changes while a sync runs, nothing is written and the tool
   reports a conflict. Re-read the note and retry.
`
