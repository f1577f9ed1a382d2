// Package testutil provides shared helpers for vault, database and remote
// store setup in tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/index"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/storage"
)

// TestDB opens a SQLite index in a temp dir that is cleaned up with t.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "tasklink-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// FakeRemote is an in-memory remote task store that records calls.
type FakeRemote struct {
	mu      sync.Mutex
	next    int
	tasks   map[string]models.RemoteTask
	order   []string
	Creates []models.RemoteTask
	Updates []models.RemoteTask
	Gets    []string
	// FailTitles makes create and update fail for these titles.
	FailTitles map[string]bool
}

// NewFakeRemote returns an empty fake.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{tasks: map[string]models.RemoteTask{}, FailTitles: map[string]bool{}}
}

// CreateTask implements syncer.RemoteStore.
func (f *FakeRemote) CreateTask(_ context.Context, _ string, shape models.RemoteTask) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates = append(f.Creates, shape)
	if f.FailTitles[shape.Title] {
		return nil, fmt.Errorf("fake remote: create %q: %w", shape.Title, apperr.ErrRemote)
	}
	f.next++
	shape.ID = fmt.Sprintf("remote-%d", f.next)
	if shape.Status == "" {
		shape.Status = models.StatusNotStarted
	}
	f.tasks[shape.ID] = shape
	f.order = append(f.order, shape.ID)
	out := shape
	return &out, nil
}

// UpdateTask implements syncer.RemoteStore.
func (f *FakeRemote) UpdateTask(_ context.Context, _ string, id string, shape models.RemoteTask) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, shape)
	if f.FailTitles[shape.Title] {
		return nil, fmt.Errorf("fake remote: update %q: %w", shape.Title, apperr.ErrRemote)
	}
	cur, ok := f.tasks[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cur.Title = shape.Title
	if shape.Status != "" {
		cur.Status = shape.Status
	}
	if shape.Importance != "" {
		cur.Importance = shape.Importance
	}
	if shape.Body != nil {
		cur.Body = shape.Body
	}
	if shape.ChecklistItems != nil {
		cur.ChecklistItems = shape.ChecklistItems
	}
	f.tasks[id] = cur
	out := cur
	return &out, nil
}

// GetTask implements syncer.RemoteStore.
func (f *FakeRemote) GetTask(_ context.Context, _ string, id string) (*models.RemoteTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets = append(f.Gets, id)
	cur, ok := f.tasks[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &cur, nil
}

// ListsWithTasks returns a single "Tasks" list holding every task in
// creation order.
func (f *FakeRemote) ListsWithTasks(_ context.Context) ([]models.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := models.TaskList{ID: "list-1", DisplayName: "Tasks"}
	for _, id := range f.order {
		if t, ok := f.tasks[id]; ok {
			list.Tasks = append(list.Tasks, t)
		}
	}
	return []models.TaskList{list}, nil
}

// Put stores rec as if it was edited remotely.
func (f *FakeRemote) Put(rec models.RemoteTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[rec.ID]; !ok {
		f.order = append(f.order, rec.ID)
	}
	f.tasks[rec.ID] = rec
}

// Task returns the stored record for id.
func (f *FakeRemote) Task(id string) (models.RemoteTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}
