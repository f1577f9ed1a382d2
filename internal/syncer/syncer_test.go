package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/parser"
	"github.com/starford/tasklink/internal/registry"
	"github.com/starford/tasklink/internal/render"
)

type fakeStore struct {
	mu      sync.Mutex
	next    int
	tasks   map[string]models.RemoteTask
	creates []models.RemoteTask
	updates []models.RemoteTask
	gets    int
	// failTitle makes CreateTask and UpdateTask fail for that title.
	failTitle string
	// echo, when set, is returned verbatim by UpdateTask.
	echo *models.RemoteTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]models.RemoteTask{}}
}

func (f *fakeStore) CreateTask(_ context.Context, _ string, shape models.RemoteTask) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, shape)
	if f.failTitle != "" && shape.Title == f.failTitle {
		return nil, errors.New("boom")
	}
	f.next++
	shape.ID = fmt.Sprintf("R%d", f.next)
	if shape.Status == "" {
		shape.Status = models.StatusNotStarted
	}
	f.tasks[shape.ID] = shape
	return &shape, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, _ string, id string, shape models.RemoteTask) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, shape)
	if f.failTitle != "" && shape.Title == f.failTitle {
		return nil, errors.New("boom")
	}
	if f.echo != nil {
		out := *f.echo
		return &out, nil
	}
	cur, ok := f.tasks[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cur.Title = shape.Title
	if shape.Status != "" {
		cur.Status = shape.Status
	}
	if shape.Body != nil {
		cur.Body = shape.Body
	}
	if shape.ChecklistItems != nil {
		cur.ChecklistItems = shape.ChecklistItems
	}
	f.tasks[id] = cur
	return &cur, nil
}

func (f *fakeStore) GetTask(_ context.Context, _ string, id string) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	cur, ok := f.tasks[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &cur, nil
}

func newTestSyncer(t *testing.T, store RemoteStore) (*Syncer, *registry.Registry, *registry.Memory) {
	t.Helper()
	mem := registry.NewMemory()
	reg, err := registry.Open(context.Background(), mem, registry.WithPrefix(func() string { return "abcd" }))
	if err != nil {
		t.Fatal(err)
	}
	orch := New(store, reg, "L1", nil)
	s := NewSyncer(orch, Options{
		Parse: parser.Options{
			Glyphs:  models.Glyphs{Low: "🔽", High: "🔼"},
			Symbols: models.DefaultStatusSymbols(),
		},
		Render: render.Options{
			Symbols: models.DefaultStatusSymbols(),
			Glyphs:  models.Glyphs{Low: "🔽", High: "🔼"},
		},
		Link: LinkOptions{ApplicationName: "Obsidian", URLTemplate: "obsidian://open?file={{FILE}}"},
	}, nil)
	return s, reg, mem
}

func TestSyncSingleLine_Create(t *testing.T) {
	store := newFakeStore()
	s, reg, _ := newTestSyncer(t, store)

	out, task, err := s.SyncSingleLine(context.Background(), "- [ ] Buy milk", "Daily Note.md")
	if err != nil {
		t.Fatalf("SyncSingleLine: %v", err)
	}
	if out != "- [ ] Buy milk ^abcd00001" {
		t.Errorf("out = %q", out)
	}
	if task.RemoteID != "R1" {
		t.Errorf("remote id = %q", task.RemoteID)
	}
	if id, ok := reg.Resolve("abcd00001"); !ok || id != "R1" {
		t.Errorf("registry resolve = %q, %v", id, ok)
	}
	if len(store.creates) != 1 {
		t.Fatalf("creates = %d", len(store.creates))
	}
	links := store.creates[0].LinkedResources
	if len(links) != 1 || links[0].WebURL != "obsidian://open?file=Daily+Note.md" {
		t.Errorf("linked resources = %+v", links)
	}
}

func TestSyncSingleLine_UpdateKnownToken(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)
	ctx := context.Background()

	first, _, err := s.SyncSingleLine(ctx, "- [ ] Buy milk", "n.md")
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(first, "[ ]", "[x]", 1)
	out, _, err := s.SyncSingleLine(ctx, edited, "n.md")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(store.creates) != 1 || len(store.updates) != 1 {
		t.Fatalf("creates = %d, updates = %d", len(store.creates), len(store.updates))
	}
	if store.updates[0].Status != models.StatusCompleted {
		t.Errorf("pushed status = %q", store.updates[0].Status)
	}
	if out != "- [x] Buy milk ^abcd00001" {
		t.Errorf("out = %q", out)
	}
	if len(store.updates[0].LinkedResources) != 0 {
		t.Errorf("update re-sent linked resources: %+v", store.updates[0].LinkedResources)
	}
}

func TestSyncSingleLine_UnknownTokenCreates(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)

	out, task, err := s.SyncSingleLine(context.Background(), "- [ ] Stale ^zzzz00042", "n.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(store.creates) != 1 || len(store.updates) != 0 {
		t.Fatalf("creates = %d, updates = %d", len(store.creates), len(store.updates))
	}
	if task.BlockLink != "abcd00001" {
		t.Errorf("block link = %q", task.BlockLink)
	}
	if strings.Contains(out, "zzzz00042") {
		t.Errorf("stale token kept: %q", out)
	}
}

func TestSyncSingleLine_EchoOverwritesStatusNotTitle(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)
	ctx := context.Background()

	first, _, err := s.SyncSingleLine(ctx, "- [ ] Local title", "n.md")
	if err != nil {
		t.Fatal(err)
	}
	store.echo = &models.RemoteTask{
		ID:             "R1",
		Title:          "Remote title",
		Status:         models.StatusCompleted,
		ChecklistItems: []models.ChecklistItem{{DisplayName: "sub", IsChecked: true}},
	}
	_, task, err := s.SyncSingleLine(ctx, first, "n.md")
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Local title" {
		t.Errorf("title = %q, want local title", task.Title)
	}
	if task.Status != models.StatusCompleted {
		t.Errorf("status = %q", task.Status)
	}
	if len(task.ChecklistItems) != 1 || !task.ChecklistItems[0].IsChecked {
		t.Errorf("checklist = %+v", task.ChecklistItems)
	}
}

func TestSync_FailureLeavesTaskUntouched(t *testing.T) {
	store := newFakeStore()
	store.failTitle = "Broken"
	s, reg, _ := newTestSyncer(t, store)

	line := "- [ ] Broken"
	out, task, err := s.SyncSingleLine(context.Background(), line, "n.md")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != line {
		t.Errorf("out = %q, want original", out)
	}
	if task.BlockLink != "" || task.RemoteID != "" {
		t.Errorf("task mutated: %+v", task)
	}
	if reg.Len() != 0 || reg.Counter() != 0 {
		t.Errorf("registry len = %d counter = %d", reg.Len(), reg.Counter())
	}
}

func TestSync_MintFailureKeepsLine(t *testing.T) {
	store := newFakeStore()
	s, reg, mem := newTestSyncer(t, store)
	mem.Fail = errors.New("disk full")

	out, task, err := s.SyncSingleLine(context.Background(), "- [ ] Orphan", "n.md")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "- [ ] Orphan" || task.BlockLink != "" {
		t.Errorf("out = %q, task = %+v", out, task)
	}
	if _, ok := reg.Resolve("abcd00001"); ok {
		t.Error("failed mint is resolvable")
	}
}

func TestSync_NoList(t *testing.T) {
	reg, err := registry.Open(context.Background(), registry.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	o := New(newFakeStore(), reg, "", nil)
	_, err = o.Sync(context.Background(), &models.Task{Title: "x"}, Mode{})
	if !errors.Is(err, apperr.ErrNoList) {
		t.Fatalf("err = %v, want ErrNoList", err)
	}
}

func TestSyncLines_OrderAndFailures(t *testing.T) {
	store := newFakeStore()
	store.failTitle = "bad"
	s, _, _ := newTestSyncer(t, store)

	lines := []string{
		"# Heading",
		"- [ ] one",
		"- [ ] bad",
		"",
		"- [ ] three",
		"- [ ] untouched",
	}
	out, results, err := s.SyncLines(context.Background(), lines, []int{1, 2, 3, 4}, "n.md", true)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v, want line 2 failure", err)
	}
	if len(out) != len(lines) {
		t.Fatalf("len(out) = %d", len(out))
	}
	if out[0] != lines[0] || out[2] != lines[2] || out[3] != "" || out[5] != lines[5] {
		t.Errorf("unexpected changes: %q", out)
	}
	for _, i := range []int{1, 4} {
		if !strings.HasPrefix(out[i], lines[i]+" ^abcd") {
			t.Errorf("out[%d] = %q", i, out[i])
		}
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Index >= results[i].Index {
			t.Errorf("results not ordered: %+v", results)
		}
	}
	if len(store.creates) != 3 {
		t.Errorf("creates = %d", len(store.creates))
	}
}

func TestSyncLines_NoReplace(t *testing.T) {
	store := newFakeStore()
	s, reg, _ := newTestSyncer(t, store)
	lines := []string{"- [ ] a", "- [ ] b"}

	out, _, err := s.SyncLines(context.Background(), lines, []int{0, 1}, "n.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != lines[0] || out[1] != lines[1] {
		t.Errorf("out = %q", out)
	}
	if reg.Len() != 2 {
		t.Errorf("registry len = %d", reg.Len())
	}
}

func TestSyncLines_OutOfRange(t *testing.T) {
	s, _, _ := newTestSyncer(t, newFakeStore())
	_, _, err := s.SyncLines(context.Background(), []string{"x"}, []int{3}, "n.md", true)
	if !errors.Is(err, apperr.ErrOutOfRange) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncLineWithChildren(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)

	lines := []string{
		"intro",
		"- [ ] Plan trip 🔼",
		"  book flights early",
		"  - [ ] passport",
		"  - [ ] visa",
		"",
		"after",
	}
	res, err := s.SyncLineWithChildren(context.Background(), lines, 1, "trip.md", false)
	if err != nil {
		t.Fatalf("SyncLineWithChildren: %v", err)
	}
	if res.Start != 1 || res.End != 4 || res.State != StateCreated {
		t.Errorf("res = %+v", res)
	}
	created := store.creates[0]
	if created.Importance != models.ImportanceHigh {
		t.Errorf("importance = %q", created.Importance)
	}
	if created.Body == nil || created.Body.Content != "book flights early\n" {
		t.Errorf("body = %+v", created.Body)
	}
	if len(created.ChecklistItems) != 2 || created.ChecklistItems[1].DisplayName != "visa" {
		t.Errorf("checklist = %+v", created.ChecklistItems)
	}
	want := "- [ ] Plan trip 🔼 ^abcd00001\n  book flights early\n  - [ ] passport\n  - [ ] visa"
	if res.Markdown != want {
		t.Errorf("markdown =\n%s\nwant\n%s", res.Markdown, want)
	}
}

func TestSyncLineWithChildren_Pull(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)
	ctx := context.Background()

	first, _, err := s.SyncSingleLine(ctx, "- [ ] Remote edited", "n.md")
	if err != nil {
		t.Fatal(err)
	}
	store.tasks["R1"] = models.RemoteTask{
		ID:             "R1",
		Title:          "ignored",
		Status:         models.StatusCompleted,
		Body:           &models.ItemBody{Content: "from remote", ContentType: "text"},
		ChecklistItems: []models.ChecklistItem{{DisplayName: "done", IsChecked: true}},
	}

	res, err := s.SyncLineWithChildren(ctx, []string{first, "  - [ ] local child"}, 0, "n.md", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.updates) != 0 || store.gets != 1 {
		t.Errorf("updates = %d, gets = %d", len(store.updates), store.gets)
	}
	want := "- [x] Remote edited ^abcd00001\n  from remote\n  - [x] done"
	if res.Markdown != want {
		t.Errorf("markdown =\n%s\nwant\n%s", res.Markdown, want)
	}
}

func TestSyncLineWithChildren_PullMissingRemote(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)
	ctx := context.Background()

	first, _, err := s.SyncSingleLine(ctx, "- [ ] Gone", "n.md")
	if err != nil {
		t.Fatal(err)
	}
	delete(store.tasks, "R1")

	res, err := s.SyncLineWithChildren(ctx, []string{first}, 0, "n.md", true)
	if err != nil {
		t.Fatalf("pull of missing task: %v", err)
	}
	if res.Markdown != first {
		t.Errorf("markdown = %q, want %q", res.Markdown, first)
	}
}

func TestBlankLinesAreNotSynced(t *testing.T) {
	store := newFakeStore()
	s, reg, _ := newTestSyncer(t, store)
	ctx := context.Background()

	for _, line := range []string{"", "   ", "\t"} {
		out, task, err := s.SyncSingleLine(ctx, line, "n.md")
		if err != nil || task != nil || out != line {
			t.Errorf("SyncSingleLine(%q) = %q, %v, %v", line, out, task, err)
		}
	}

	lines := []string{"# Heading", "  ", "- [ ] real"}
	res, err := s.SyncLineWithChildren(ctx, lines, 1, "n.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Task != nil || res.Start != 1 || res.End != 1 || res.Markdown != "  " {
		t.Errorf("section = %+v", res)
	}

	if len(store.creates) != 0 || reg.Len() != 0 {
		t.Errorf("creates = %d, tokens = %d", len(store.creates), reg.Len())
	}
}

func TestSyncLineWithChildren_CRLFBoundary(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSyncer(t, store)

	lines := strings.Split("- [ ] Task one\r\n  body\r\n\r\n# Other heading\r\nunrelated paragraph\r\n", "\n")
	res, err := s.SyncLineWithChildren(context.Background(), lines, 0, "n.md", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.End != 1 {
		t.Errorf("end = %d, want 1", res.End)
	}
	if body := store.creates[0].Body; body == nil || body.Content != "body\n" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(res.Markdown, "heading") || strings.Contains(res.Markdown, "paragraph") {
		t.Errorf("markdown ran past the blank line: %q", res.Markdown)
	}
}
