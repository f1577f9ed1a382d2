package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/parser"
	"github.com/starford/tasklink/internal/render"
)

// PlaceholderFile is replaced with the query-escaped note name in
// LinkOptions.URLTemplate.
const PlaceholderFile = "{{FILE}}"

// LinkOptions describes the back-reference attached to newly created tasks.
// An empty URLTemplate disables it.
type LinkOptions struct {
	ApplicationName string
	URLTemplate     string
}

// Options configures a Syncer.
type Options struct {
	Parse  parser.Options
	Render render.Options
	Link   LinkOptions
	// Workers bounds concurrent remote calls in bulk operations.
	Workers int
}

// Syncer maps Markdown lines to remote tasks and back.
type Syncer struct {
	orch   *Orchestrator
	opts   Options
	logger *slog.Logger
}

// NewSyncer wires an orchestrator with the line parser and renderer.
func NewSyncer(orch *Orchestrator, opts Options, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Parse.Resolver == nil {
		opts.Parse.Resolver = orch.identity
	}
	return &Syncer{orch: orch, opts: opts, logger: logger}
}

// Parse runs the line parser with the configured glyphs and registry.
func (s *Syncer) Parse(line, fileName string) *models.Task {
	po := s.opts.Parse
	po.FileName = fileName
	return parser.ParseLine(line, po)
}

// Render runs the serializer with the configured template.
func (s *Syncer) Render(t *models.Task, singleLine bool) string {
	return render.Task(t, s.opts.Render, singleLine)
}

// LineResult reports what happened to one line of a bulk sync.
type LineResult struct {
	Index int
	State State
	Task  *models.Task
	Err   error
}

// SyncSingleLine syncs one line without its children and returns the
// rendered replacement line. A blank line is returned unchanged with a nil
// task.
func (s *Syncer) SyncSingleLine(ctx context.Context, line, fileName string) (string, *models.Task, error) {
	if blank(line) {
		return line, nil, nil
	}
	t := s.prepare(line, fileName)
	if _, err := s.orch.Sync(ctx, t, Mode{}); err != nil {
		return line, t, err
	}
	return s.Render(t, true), t, nil
}

// SyncLines syncs the lines at indices concurrently. The returned document
// has the same length as lines; a line is replaced by its rendered form
// only when replace is set and its sync succeeded. Failures are joined into
// the returned error while the remaining lines still complete.
func (s *Syncer) SyncLines(ctx context.Context, lines []string, indices []int, fileName string, replace bool) ([]string, []LineResult, error) {
	selected := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(lines) {
			return nil, nil, fmt.Errorf("syncer: line %d: %w", i, apperr.ErrOutOfRange)
		}
		selected[i] = struct{}{}
	}

	results := make([]LineResult, len(lines))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range lines {
		if _, ok := selected[i]; !ok {
			continue
		}
		if blank(lines[i]) {
			continue
		}
		g.Go(func() error {
			t := s.prepare(lines[i], fileName)
			state, err := s.orch.Sync(ctx, t, Mode{})
			results[i] = LineResult{Index: i, State: state, Task: t, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, len(lines))
	var errs []error
	var done []LineResult
	for i, line := range lines {
		out[i] = line
		r := results[i]
		if r.Task == nil {
			continue
		}
		done = append(done, r)
		if r.Err != nil {
			s.logger.Warn("syncer: line failed",
				slog.Int("line", i),
				slog.String("error", r.Err.Error()))
			errs = append(errs, fmt.Errorf("line %d: %w", i, r.Err))
			continue
		}
		if replace {
			out[i] = s.Render(r.Task, true)
		}
	}
	return out, done, errors.Join(errs...)
}

// blank lines carry no task and are never sent to the remote.
func blank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// SectionResult is the replacement for lines[Start..End] of a document.
type SectionResult struct {
	Start    int
	End      int
	State    State
	Task     *models.Task
	Markdown string
}

// SyncLineWithChildren syncs the task at lines[start] together with its
// indented body and child checklist lines. With pull set, remote state
// replaces local state without pushing anything. A blank task line yields a
// one-line result holding the line unchanged and a nil Task.
func (s *Syncer) SyncLineWithChildren(ctx context.Context, lines []string, start int, fileName string, pull bool) (SectionResult, error) {
	if start < 0 || start >= len(lines) {
		return SectionResult{}, fmt.Errorf("syncer: line %d: %w", start, apperr.ErrOutOfRange)
	}
	if blank(lines[start]) {
		return SectionResult{Start: start, End: start, State: StateNew, Markdown: lines[start]}, nil
	}
	sec := parser.ScanSection(lines, start)

	t := s.prepare(lines[start], fileName)
	t.SetBody(sec.Body)
	for _, child := range sec.Children {
		t.AddChecklistItem(child)
	}

	res := SectionResult{Start: sec.Start, End: sec.End, Task: t}
	state, err := s.orch.Sync(ctx, t, Mode{IncludeChecklist: true, Pull: pull})
	res.State = state
	if err != nil {
		return res, err
	}
	res.Markdown = s.Render(t, false)
	return res, nil
}

// prepare parses line and attaches the note back-reference to tasks that
// are about to be created.
func (s *Syncer) prepare(line, fileName string) *models.Task {
	t := s.Parse(line, fileName)
	if s.orch.Initial(t) == StateNew {
		if link, ok := s.backReference(fileName); ok {
			t.LinkedResources = append(t.LinkedResources, link)
		}
	}
	return t
}

func (s *Syncer) backReference(fileName string) (models.LinkedResource, bool) {
	lo := s.opts.Link
	if lo.URLTemplate == "" || fileName == "" {
		return models.LinkedResource{}, false
	}
	return models.LinkedResource{
		WebURL:          strings.ReplaceAll(lo.URLTemplate, PlaceholderFile, url.QueryEscape(fileName)),
		ApplicationName: lo.ApplicationName,
		DisplayName:     fileName,
	}, true
}
