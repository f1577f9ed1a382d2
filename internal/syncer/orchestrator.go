// Package syncer decides between creating and updating remote tasks for
// Markdown task lines and folds the remote answer back into the task.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/models"
)

// RemoteStore is the remote task service.
type RemoteStore interface {
	CreateTask(ctx context.Context, listID string, shape models.RemoteTask) (*models.RemoteTask, error)
	UpdateTask(ctx context.Context, listID, id string, shape models.RemoteTask) (*models.RemoteTask, error)
	// GetTask returns apperr.ErrNotFound when the task does not exist.
	GetTask(ctx context.Context, listID, id string) (*models.RemoteTask, error)
}

// Identity mints and resolves block link tokens.
type Identity interface {
	Mint(ctx context.Context, remoteID string) (string, error)
	Resolve(token string) (string, bool)
}

// State is a step of the per-task sync state machine.
type State string

const (
	StateNew           State = "NEW"
	StateCreatePending State = "CREATE_PENDING"
	StateCreated       State = "CREATED"
	StateLinked        State = "LINKED"
	StateUpdatePending State = "UPDATE_PENDING"
	StateUpdated       State = "UPDATED"
)

// Mode selects what a sync does for a linked task.
type Mode struct {
	// IncludeChecklist sends checklist items to the remote.
	IncludeChecklist bool
	// Pull fetches remote state instead of pushing local state.
	Pull bool
}

// Orchestrator runs the create/update state machine for single tasks.
type Orchestrator struct {
	store    RemoteStore
	identity Identity
	listID   string
	logger   *slog.Logger
}

// New creates an Orchestrator that syncs into listID.
func New(store RemoteStore, identity Identity, listID string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, identity: identity, listID: listID, logger: logger}
}

// Initial returns the starting state for t.
func (o *Orchestrator) Initial(t *models.Task) State {
	if t.HasBlockLink() {
		if t.RemoteID == "" {
			if id, ok := o.identity.Resolve(t.BlockLink); ok {
				t.RemoteID = id
			}
		}
		if t.RemoteID != "" {
			return StateLinked
		}
	}
	return StateNew
}

// Sync pushes or pulls t and returns the terminal state reached. On error t
// keeps the field values it had before the call and no token is minted.
func (o *Orchestrator) Sync(ctx context.Context, t *models.Task, mode Mode) (State, error) {
	if o.listID == "" {
		return StateNew, apperr.ErrNoList
	}
	switch state := o.Initial(t); state {
	case StateLinked:
		return o.update(ctx, t, mode)
	default:
		return o.create(ctx, t, mode)
	}
}

func (o *Orchestrator) create(ctx context.Context, t *models.Task, mode Mode) (State, error) {
	shape := t.ToRemoteShape(mode.IncludeChecklist)
	o.transition(t, StateNew, StateCreatePending)

	rec, err := o.store.CreateTask(ctx, o.listID, shape)
	if err != nil {
		return StateNew, fmt.Errorf("syncer: create %q: %w", t.Title, err)
	}
	if rec == nil || rec.ID == "" {
		return StateNew, fmt.Errorf("syncer: create %q: remote returned no id", t.Title)
	}

	token, err := o.identity.Mint(ctx, rec.ID)
	if err != nil {
		// The remote record exists but cannot be linked; the line stays as is.
		o.logger.Error("syncer: orphaned remote task",
			slog.String("remote_id", rec.ID),
			slog.String("error", err.Error()))
		return StateNew, fmt.Errorf("syncer: link %s: %w", rec.ID, err)
	}

	t.BlockLink = token
	t.RemoteID = rec.ID
	t.ApplyRemote(rec, models.FieldStatus)
	o.transition(t, StateCreatePending, StateCreated)
	return StateCreated, nil
}

func (o *Orchestrator) update(ctx context.Context, t *models.Task, mode Mode) (State, error) {
	o.transition(t, StateLinked, StateUpdatePending)

	var (
		rec *models.RemoteTask
		err error
	)
	if mode.Pull {
		rec, err = o.store.GetTask(ctx, o.listID, t.RemoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			o.logger.Warn("syncer: remote task missing on pull",
				slog.String("block_link", t.BlockLink),
				slog.String("remote_id", t.RemoteID))
			return StateUpdated, nil
		}
	} else {
		rec, err = o.store.UpdateTask(ctx, o.listID, t.RemoteID, t.ToRemoteShape(mode.IncludeChecklist))
	}
	if err != nil {
		return StateLinked, fmt.Errorf("syncer: update %s: %w", t.RemoteID, err)
	}

	t.ApplyRemote(rec, models.FieldsEcho)
	o.transition(t, StateUpdatePending, StateUpdated)
	return StateUpdated, nil
}

func (o *Orchestrator) transition(t *models.Task, from, to State) {
	o.logger.Debug("syncer: transition",
		slog.String("title", t.Title),
		slog.String("block_link", t.BlockLink),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
}
