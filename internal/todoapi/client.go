// Package todoapi is an HTTP client for the remote task store.
//
// The store speaks JSON over REST in the shape of the Microsoft Graph To Do
// API: lists under /lists, tasks under /lists/{listId}/tasks.
package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/models"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("todoapi: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Is maps HTTP status codes onto the shared sentinels. Every StatusError
// is an apperr.ErrRemote.
func (e *StatusError) Is(target error) bool {
	switch target {
	case apperr.ErrRemote:
		return true
	case apperr.ErrNotFound:
		return e.Code == http.StatusNotFound
	case apperr.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case apperr.ErrConflict:
		return e.Code == http.StatusConflict || e.Code == http.StatusPreconditionFailed
	}
	return false
}

// Client talks to the remote task store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client. timeout bounds each request; zero means none.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type listEnvelope[T any] struct {
	Value []T `json:"value"`
}

// CreateTask creates a task in listID.
func (c *Client) CreateTask(ctx context.Context, listID string, shape models.RemoteTask) (*models.RemoteTask, error) {
	var out models.RemoteTask
	if err := c.do(ctx, http.MethodPost, taskPath(listID, ""), shape, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask patches task id in listID with shape and returns the result.
func (c *Client) UpdateTask(ctx context.Context, listID, id string, shape models.RemoteTask) (*models.RemoteTask, error) {
	var out models.RemoteTask
	if err := c.do(ctx, http.MethodPatch, taskPath(listID, id), shape, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches task id. A missing task yields apperr.ErrNotFound.
func (c *Client) GetTask(ctx context.Context, listID, id string) (*models.RemoteTask, error) {
	var out models.RemoteTask
	if err := c.do(ctx, http.MethodGet, taskPath(listID, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns all tasks of listID.
func (c *Client) ListTasks(ctx context.Context, listID string) ([]models.RemoteTask, error) {
	var env listEnvelope[models.RemoteTask]
	if err := c.do(ctx, http.MethodGet, taskPath(listID, ""), nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// ListLists returns every task list without their tasks.
func (c *Client) ListLists(ctx context.Context) ([]models.TaskList, error) {
	var env listEnvelope[models.TaskList]
	if err := c.do(ctx, http.MethodGet, "/lists", nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// CreateList creates a list named name.
func (c *Client) CreateList(ctx context.Context, name string) (*models.TaskList, error) {
	var out models.TaskList
	body := map[string]string{"displayName": name}
	if err := c.do(ctx, http.MethodPost, "/lists", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnsureList returns the id of the list called name, creating it if needed.
func (c *Client) EnsureList(ctx context.Context, name string) (string, error) {
	lists, err := c.ListLists(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lists {
		if l.DisplayName == name {
			return l.ID, nil
		}
	}
	created, err := c.CreateList(ctx, name)
	if err != nil {
		return "", err
	}
	c.logger.Info("todoapi: created list", slog.String("name", name), slog.String("id", created.ID))
	return created.ID, nil
}

// ListsWithTasks returns every list with its tasks filled in.
func (c *Client) ListsWithTasks(ctx context.Context) ([]models.TaskList, error) {
	lists, err := c.ListLists(ctx)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		tasks, err := c.ListTasks(ctx, lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Tasks = tasks
	}
	return lists, nil
}

func taskPath(listID, id string) string {
	p := "/lists/" + url.PathEscape(listID) + "/tasks"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("todoapi: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("todoapi: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("todoapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("todoapi: request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("todoapi: decode %s %s: %w", method, path, err)
	}
	return nil
}
