package noteservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/index"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/parser"
	"github.com/starford/tasklink/internal/registry"
	"github.com/starford/tasklink/internal/render"
	"github.com/starford/tasklink/internal/sse"
	"github.com/starford/tasklink/internal/storage"
	"github.com/starford/tasklink/internal/syncer"
	"github.com/starford/tasklink/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishTask(typ string, ev sse.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, typ)
}

type env struct {
	svc    *Service
	store  *storage.FS
	db     *index.DB
	remote *testutil.FakeRemote
	events *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	reg, err := registry.Open(ctx, db, registry.WithPrefix(func() string { return "c0de" }))
	if err != nil {
		t.Fatal(err)
	}
	remote := testutil.NewFakeRemote()
	sy := syncer.NewSyncer(syncer.New(remote, reg, "list-1", nil), syncer.Options{
		Render:  render.Options{Symbols: models.DefaultStatusSymbols()},
		Parse:   parser.Options{Symbols: models.DefaultStatusSymbols()},
		Workers: 1,
	}, nil)
	rec := &recorder{}
	svc := NewService(Deps{
		Store:    store,
		Index:    db,
		Syncer:   sy,
		Resolver: reg,
		Lists:    remote,
		Events:   rec,
	})
	return &env{svc: svc, store: store, db: db, remote: remote, events: rec}
}

func (e *env) write(t *testing.T, path, content string) {
	t.Helper()
	if err := e.store.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func (e *env) read(t *testing.T, path string) string {
	t.Helper()
	data, err := e.store.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSyncLines_ReplacesAndIndexes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "daily/2026-10-19.md", "# Today\n- [ ] Buy milk\n- [x] Call mom\nnotes\n")

	res, err := e.svc.SyncLines(ctx, "daily/2026-10-19.md", 1, 2, true)
	if err != nil {
		t.Fatalf("SyncLines: %v", err)
	}
	if !res.Written || res.Failed() != 0 || len(res.Lines) != 2 {
		t.Fatalf("res = %+v", res)
	}
	want := "# Today\n- [ ] Buy milk ^c0de00001\n- [x] Call mom ^c0de00002\nnotes\n"
	if got := e.read(t, "daily/2026-10-19.md"); got != want {
		t.Errorf("note =\n%q\nwant\n%q", got, want)
	}

	info, err := e.svc.Resolve(ctx, "c0de00002")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.RemoteID != "remote-2" || len(info.Refs) != 1 || info.Refs[0].Line != 2 {
		t.Errorf("info = %+v", info)
	}
	created := e.remote.Creates[0]
	if created.Body == nil || created.Body.Content != "Created in [[2026-10-19.md]]" {
		t.Errorf("body = %+v", created.Body)
	}
	if len(e.events.events) != 2 || e.events.events[0] != sse.TypeTaskCreated {
		t.Errorf("events = %v", e.events.events)
	}
}

func TestSyncLines_PartialFailure(t *testing.T) {
	e := newEnv(t)
	e.remote.FailTitles["broken"] = true
	e.write(t, "n.md", "- [ ] fine\n- [ ] broken")

	res, err := e.svc.SyncLines(context.Background(), "n.md", 0, 1, true)
	if err != nil {
		t.Fatalf("SyncLines: %v", err)
	}
	if res.Failed() != 1 || res.Lines[1].Error == "" {
		t.Errorf("res = %+v", res)
	}
	if got := e.read(t, "n.md"); got != "- [ ] fine ^c0de00001\n- [ ] broken" {
		t.Errorf("note = %q", got)
	}
}

func TestSyncLines_NoReplaceLeavesNote(t *testing.T) {
	e := newEnv(t)
	e.write(t, "n.md", "- [ ] a")
	res, err := e.svc.SyncLines(context.Background(), "n.md", 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written || e.read(t, "n.md") != "- [ ] a" {
		t.Errorf("note rewritten: %+v", res)
	}
	if len(e.remote.Creates) != 1 {
		t.Errorf("creates = %d", len(e.remote.Creates))
	}
}

func TestSyncLines_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.SyncLines(ctx, "missing.md", 0, 0, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note err = %v", err)
	}
	e.write(t, "n.md", "- [ ] a")
	if _, err := e.svc.SyncLines(ctx, "n.md", 0, 5, true); !errors.Is(err, apperr.ErrOutOfRange) {
		t.Errorf("range err = %v", err)
	}
}

type racingStore struct {
	*storage.FS
	reads int
}

// Read returns edited content from the second read on, as if the user
// typed while the sync was in flight.
func (r *racingStore) Read(path string) ([]byte, error) {
	r.reads++
	data, err := r.FS.Read(path)
	if err != nil || r.reads < 2 {
		return data, err
	}
	return append(data, []byte("\nedited")...), nil
}

func TestSyncLines_ConflictOnConcurrentEdit(t *testing.T) {
	e := newEnv(t)
	e.write(t, "n.md", "- [ ] a")
	e.svc.store = &racingStore{FS: e.store}

	_, err := e.svc.SyncLines(context.Background(), "n.md", 0, 0, true)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got := e.read(t, "n.md"); got != "- [ ] a" {
		t.Errorf("note = %q", got)
	}
}

func TestSyncSection_PushThenPull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "trip.md", "# Trip\n- [ ] Pack\n  warm clothes\n  - [ ] socks\n  - [ ] hat\n\nafter\n")

	res, err := e.svc.SyncSection(ctx, "trip.md", 1, false)
	if err != nil {
		t.Fatalf("SyncSection: %v", err)
	}
	if res.Start != 1 || res.End != 4 || res.BlockLink != "c0de00001" {
		t.Errorf("res = %+v", res)
	}
	want := "# Trip\n- [ ] Pack ^c0de00001\n  warm clothes\n  - [ ] socks\n  - [ ] hat\n\nafter\n"
	if got := e.read(t, "trip.md"); got != want {
		t.Errorf("after push =\n%q\nwant\n%q", got, want)
	}

	rec, _ := e.remote.Task("remote-1")
	rec.Status = models.StatusCompleted
	rec.ChecklistItems = []models.ChecklistItem{{DisplayName: "socks", IsChecked: true}}
	e.remote.Put(rec)

	res, err = e.svc.SyncSection(ctx, "trip.md", 1, true)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	want = "# Trip\n- [x] Pack ^c0de00001\n  warm clothes\n  - [x] socks\n\nafter\n"
	if got := e.read(t, "trip.md"); got != want {
		t.Errorf("after pull =\n%q\nwant\n%q", got, want)
	}
	if len(e.remote.Updates) != 0 {
		t.Errorf("pull pushed %d updates", len(e.remote.Updates))
	}
	last := e.events.events[len(e.events.events)-1]
	if last != sse.TypeTaskPulled {
		t.Errorf("last event = %q", last)
	}
}

func TestSyncSection_CRLFNote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "win.md", "# Trip\r\n- [ ] Pack\r\n  warm clothes\r\n\r\n# Other heading\r\nunrelated\r\n")

	res, err := e.svc.SyncSection(ctx, "win.md", 1, false)
	if err != nil {
		t.Fatalf("SyncSection: %v", err)
	}
	if res.End != 2 {
		t.Errorf("end = %d, want 2", res.End)
	}
	if body := e.remote.Creates[0].Body; body == nil || strings.Contains(body.Content, "heading") {
		t.Errorf("body = %+v", body)
	}
	want := "# Trip\r\n- [ ] Pack ^c0de00001\r\n  warm clothes\r\n\r\n# Other heading\r\nunrelated\r\n"
	if got := e.read(t, "win.md"); got != want {
		t.Errorf("note =\n%q\nwant\n%q", got, want)
	}
}

func TestSyncLines_CRLFNote(t *testing.T) {
	e := newEnv(t)
	e.write(t, "win.md", "- [ ] a\r\n- [ ] b\r\n")
	if _, err := e.svc.SyncLines(context.Background(), "win.md", 0, 1, true); err != nil {
		t.Fatal(err)
	}
	if got := e.read(t, "win.md"); got != "- [ ] a ^c0de00001\r\n- [ ] b ^c0de00002\r\n" {
		t.Errorf("note = %q", got)
	}
}

func TestSyncSection_BlankLineIsLeftAlone(t *testing.T) {
	e := newEnv(t)
	e.write(t, "n.md", "- [ ] a\n\n- [ ] b")
	res, err := e.svc.SyncSection(context.Background(), "n.md", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.BlockLink != "" || len(e.remote.Creates) != 0 || len(e.events.events) != 0 {
		t.Errorf("res = %+v, creates = %d", res, len(e.remote.Creates))
	}
	if got := e.read(t, "n.md"); got != "- [ ] a\n\n- [ ] b" {
		t.Errorf("note = %q", got)
	}
}

func TestResolve_Unknown(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.Resolve(context.Background(), "nope00001"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestToday(t *testing.T) {
	e := newEnv(t)
	e.svc.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	e.remote.Put(models.RemoteTask{ID: "x", Title: "Water plants", Status: models.StatusNotStarted, CreatedDateTime: "2026-10-18T08:00:00Z"})

	md, err := e.svc.Today(context.Background())
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if !strings.HasPrefix(md, "**Tasks**\n") || !strings.Contains(md, "Water plants") {
		t.Errorf("digest = %q", md)
	}
}
