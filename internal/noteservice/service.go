// Package noteservice applies task syncs to notes in the vault: it reads a
// note, runs the syncer over the selected lines and writes the result back
// when nobody else changed the file in the meantime.
package noteservice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/checksum"
	"github.com/starford/tasklink/internal/index"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/render"
	"github.com/starford/tasklink/internal/sse"
	"github.com/starford/tasklink/internal/storage"
	"github.com/starford/tasklink/internal/syncer"
)

// Resolver maps block link tokens to remote ids.
type Resolver interface {
	Resolve(token string) (string, bool)
}

// ListSource provides every remote list with its tasks.
type ListSource interface {
	ListsWithTasks(ctx context.Context) ([]models.TaskList, error)
}

// Publisher receives task sync outcomes. *sse.Broker implements it.
type Publisher interface {
	PublishTask(typ string, ev sse.TaskEvent)
}

// LineOutcome is the result of syncing one line of a note.
type LineOutcome struct {
	Line      int    `json:"line"`
	BlockLink string `json:"block_link,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LinesResult is returned by SyncLines.
type LinesResult struct {
	Path     string        `json:"path"`
	Checksum string        `json:"checksum"`
	Written  bool          `json:"written"`
	Lines    []LineOutcome `json:"lines"`
}

// Failed counts lines whose sync returned an error.
func (r *LinesResult) Failed() int {
	n := 0
	for _, l := range r.Lines {
		if l.Error != "" {
			n++
		}
	}
	return n
}

// SectionResult is returned by SyncSection.
type SectionResult struct {
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	BlockLink string `json:"block_link"`
	State     string `json:"state"`
	Markdown  string `json:"markdown"`
}

// LinkInfo describes a block link token and where it appears.
type LinkInfo struct {
	Token    string            `json:"token"`
	RemoteID string            `json:"remote_id"`
	Refs     []models.BlockRef `json:"refs"`
}

// Deps bundles what a Service needs.
type Deps struct {
	Store    storage.Provider
	Index    index.NoteIndex
	Syncer   *syncer.Syncer
	Resolver Resolver
	Lists    ListSource
	Digest   render.DigestOptions
	Events   Publisher
	Logger   *slog.Logger
}

// Service coordinates storage, index and syncer.
type Service struct {
	store    storage.Provider
	db       index.NoteIndex
	syncer   *syncer.Syncer
	resolver Resolver
	lists    ListSource
	digest   render.DigestOptions
	events   Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a note service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    d.Store,
		db:       d.Index,
		syncer:   d.Syncer,
		resolver: d.Resolver,
		lists:    d.Lists,
		digest:   d.Digest,
		events:   d.Events,
		logger:   logger,
		now:      time.Now,
	}
}

// ParseLine parses one line as if it came from fileName.
func (s *Service) ParseLine(line, fileName string) *models.Task {
	return s.syncer.Parse(line, fileName)
}

// RenderTask serializes t with the configured template.
func (s *Service) RenderTask(t *models.Task, singleLine bool) string {
	return s.syncer.Render(t, singleLine)
}

// SyncLines syncs lines start..end (inclusive) of the note at path. With
// replace set the note is rewritten with the rendered lines. Per-line
// failures are reported in the result and do not fail the call.
func (s *Service) SyncLines(ctx context.Context, path string, start, end int, replace bool) (*LinesResult, error) {
	note, err := s.readLines(path)
	if err != nil {
		return nil, err
	}
	lines := note.lines
	if end < start {
		end = start
	}
	if start < 0 || end >= len(lines) {
		return nil, fmt.Errorf("noteservice: lines %d-%d of %s: %w", start, end, path, apperr.ErrOutOfRange)
	}
	indices := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		indices = append(indices, i)
	}

	fileName := displayName(path)
	out, results, joined := s.syncer.SyncLines(ctx, lines, indices, fileName, replace)
	if out == nil {
		return nil, fmt.Errorf("noteservice: sync %s: %w", path, joined)
	}

	res := &LinesResult{Path: path, Checksum: checksum.Sum(note.data), Lines: make([]LineOutcome, 0, len(results))}
	changed := false
	for _, r := range results {
		o := LineOutcome{Line: r.Index, State: string(r.State)}
		typ := sse.TypeTaskUpdated
		if r.State == syncer.StateCreated {
			typ = sse.TypeTaskCreated
		}
		if r.Err != nil {
			o.Error = r.Err.Error()
		} else {
			o.BlockLink = r.Task.BlockLink
			changed = changed || out[r.Index] != lines[r.Index]
		}
		res.Lines = append(res.Lines, o)
		s.publish(typ, path, o)
	}

	if replace && changed {
		sum, err := s.writeBack(ctx, path, note, out)
		if err != nil {
			return res, err
		}
		res.Checksum = sum
		res.Written = true
	}

	s.logger.Info("noteservice: lines synced",
		slog.String("path", path),
		slog.Int("lines", len(res.Lines)),
		slog.Int("failed", res.Failed()),
		slog.Bool("written", res.Written))
	return res, nil
}

// SyncSection syncs the task at line together with its body and child
// checklist, then replaces that block in the note. With pull set, remote
// state is written into the note without pushing.
func (s *Service) SyncSection(ctx context.Context, path string, line int, pull bool) (*SectionResult, error) {
	note, err := s.readLines(path)
	if err != nil {
		return nil, err
	}
	lines := note.lines

	sec, err := s.syncer.SyncLineWithChildren(ctx, lines, line, displayName(path), pull)
	if err != nil {
		s.publish(sse.TypeTaskUpdated, path, LineOutcome{Line: line, State: string(sec.State), Error: err.Error()})
		return nil, fmt.Errorf("noteservice: sync section %s:%d: %w", path, line, err)
	}

	replaced := make([]string, 0, len(lines))
	replaced = append(replaced, lines[:sec.Start]...)
	replaced = append(replaced, strings.Split(sec.Markdown, "\n")...)
	replaced = append(replaced, lines[sec.End+1:]...)

	res := &SectionResult{
		Path:     path,
		Checksum: checksum.Sum(note.data),
		Start:    sec.Start,
		End:      sec.End,
		State:    string(sec.State),
		Markdown: sec.Markdown,
	}
	if sec.Task == nil {
		return res, nil
	}
	res.BlockLink = sec.Task.BlockLink
	if !slices.Equal(lines, replaced) {
		sum, err := s.writeBack(ctx, path, note, replaced)
		if err != nil {
			return nil, err
		}
		res.Checksum = sum
	}

	typ := sse.TypeTaskUpdated
	switch {
	case sec.State == syncer.StateCreated:
		typ = sse.TypeTaskCreated
	case pull:
		typ = sse.TypeTaskPulled
	}
	s.publish(typ, path, LineOutcome{Line: line, BlockLink: res.BlockLink, State: res.State})
	return res, nil
}

// Resolve returns the remote id of token and every indexed line that
// carries it.
func (s *Service) Resolve(ctx context.Context, token string) (*LinkInfo, error) {
	id, ok := s.resolver.Resolve(token)
	if !ok {
		return nil, fmt.Errorf("noteservice: token %s: %w", token, apperr.ErrNotFound)
	}
	refs, err := s.db.BlockRefs(ctx, token)
	if err != nil {
		return nil, err
	}
	return &LinkInfo{Token: token, RemoteID: id, Refs: nonNilSlice(refs)}, nil
}

// SearchLinks finds indexed task lines whose title contains query.
func (s *Service) SearchLinks(ctx context.Context, query string, limit int) ([]models.BlockRef, error) {
	refs, err := s.db.SearchRefs(ctx, query, limit)
	return nonNilSlice(refs), err
}

// DanglingLinks lists indexed lines whose token the registry does not know.
func (s *Service) DanglingLinks(ctx context.Context) ([]models.BlockRef, error) {
	refs, err := s.db.DanglingRefs(ctx)
	return nonNilSlice(refs), err
}

// Stats reports index counters.
func (s *Service) Stats(ctx context.Context) (index.Stats, error) {
	return s.db.Stats(ctx)
}

// Today renders the digest of every remote list as Markdown.
func (s *Service) Today(ctx context.Context) (string, error) {
	if s.lists == nil {
		return "", fmt.Errorf("noteservice: today: %w", apperr.ErrNoList)
	}
	lists, err := s.lists.ListsWithTasks(ctx)
	if err != nil {
		return "", fmt.Errorf("noteservice: today: %w", err)
	}
	return render.Digest(lists, s.digest, s.now()), nil
}

// noteText is a note split into lines with its line ending remembered.
type noteText struct {
	data  []byte
	lines []string
	eol   string
}

// readLines reads a note and splits it on LF. CRLF notes are normalised
// first and written back with CRLF.
func (s *Service) readLines(path string) (noteText, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return noteText{}, err
	}
	text := noteText{data: data, eol: "\n"}
	content := string(data)
	if strings.Contains(content, "\r\n") {
		text.eol = "\r\n"
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}
	text.lines = strings.Split(content, "\n")
	return text, nil
}

// writeBack replaces the note if it still has the content the sync started
// from. A concurrent edit yields apperr.ErrConflict and nothing is written.
func (s *Service) writeBack(ctx context.Context, path string, original noteText, lines []string) (string, error) {
	current, err := s.store.Read(path)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(current, original.data) {
		s.logger.Warn("noteservice: note changed during sync",
			slog.String("path", path),
			slog.String("want", checksum.Short(original.data)),
			slog.String("got", checksum.Short(current)))
		return "", fmt.Errorf("noteservice: write %s: %w", path, apperr.ErrConflict)
	}

	content := []byte(strings.Join(lines, original.eol))
	if err := s.store.Write(path, content); err != nil {
		return "", err
	}
	if err := index.IndexFile(ctx, s.db, path, content); err != nil {
		s.logger.Warn("noteservice: reindex failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return checksum.Sum(content), nil
}

func (s *Service) publish(typ, path string, o LineOutcome) {
	if s.events == nil {
		return
	}
	s.events.PublishTask(typ, sse.TaskEvent{
		Path:      path,
		Line:      o.Line,
		BlockLink: o.BlockLink,
		State:     o.State,
		Error:     o.Error,
	})
}

// displayName is the note name used in bodies and back-references.
func displayName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
