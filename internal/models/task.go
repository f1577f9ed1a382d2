// Package models defines the domain types for tasklink.
package models

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Status is the progress state of a task.
type Status string

const (
	// StatusUnset means the source line carried no checkbox.
	StatusUnset      Status = ""
	StatusNotStarted Status = "notStarted"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
)

// Effective returns the status with the not-started default applied.
func (s Status) Effective() Status {
	switch s {
	case StatusInProgress, StatusCompleted:
		return s
	default:
		return StatusNotStarted
	}
}

// IsValid reports whether s is one of the known remote statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// Importance is the priority of a task.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// ContentTypeText is the only body content type tasklink produces.
const ContentTypeText = "text"

// ItemBody is the free-text body of a task.
type ItemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// ChecklistItem is one sub-item of a task. Order is significant.
type ChecklistItem struct {
	DisplayName string `json:"displayName"`
	IsChecked   bool   `json:"isChecked"`
}

// LinkedResource points from a remote task back to the note it came from.
type LinkedResource struct {
	WebURL          string `json:"webUrl"`
	ApplicationName string `json:"applicationName"`
	DisplayName     string `json:"displayName"`
}

// Task is the in-memory representation of one task line and its section.
type Task struct {
	Title           string           `json:"title"`
	Body            ItemBody         `json:"body"`
	Status          Status           `json:"status,omitempty"`
	Importance      Importance       `json:"importance,omitempty"`
	BlockLink       string           `json:"blockLink,omitempty"`
	RemoteID        string           `json:"remoteId,omitempty"`
	ChecklistItems  []ChecklistItem  `json:"checklistItems,omitempty"`
	LinkedResources []LinkedResource `json:"linkedResources,omitempty"`
	FileName        string           `json:"fileName,omitempty"`

	// Remote-only fields, kept verbatim and never pushed.
	DueDateTime json.RawMessage `json:"dueDateTime,omitempty"`
	Recurrence  json.RawMessage `json:"recurrence,omitempty"`
}

// HasBlockLink reports whether the source line carried an identity token.
func (t *Task) HasBlockLink() bool {
	return t.BlockLink != ""
}

// Linked reports whether the task is associated with a remote record.
func (t *Task) Linked() bool {
	return t.BlockLink != "" && t.RemoteID != ""
}

// SetBody replaces the body content verbatim.
func (t *Task) SetBody(text string) {
	t.Body = ItemBody{Content: text, ContentType: ContentTypeText}
}

var checklistPrefixRe = regexp.MustCompile(`^\s*(?:[-*+]\s+)?(?:\[[^\[\]]?\]\s*)?`)

// AddChecklistItem strips any list marker and checkbox from raw and appends
// the remainder as an unchecked item.
func (t *Task) AddChecklistItem(raw string) {
	name := strings.TrimSpace(checklistPrefixRe.ReplaceAllString(raw, ""))
	t.ChecklistItems = append(t.ChecklistItems, ChecklistItem{DisplayName: name})
}

// RemoteTask is the shape exchanged with the remote task store.
type RemoteTask struct {
	ID              string           `json:"id,omitempty"`
	Title           string           `json:"title,omitempty"`
	Body            *ItemBody        `json:"body,omitempty"`
	Status          Status           `json:"status,omitempty"`
	Importance      Importance       `json:"importance,omitempty"`
	ChecklistItems  []ChecklistItem  `json:"checklistItems,omitempty"`
	LinkedResources []LinkedResource `json:"linkedResources,omitempty"`
	CreatedDateTime string           `json:"createdDateTime,omitempty"`
	DueDateTime     json.RawMessage  `json:"dueDateTime,omitempty"`
	Recurrence      json.RawMessage  `json:"recurrence,omitempty"`
}

// ToRemoteShape projects the task onto the fields the remote store accepts.
// Empty local values are left out so they cannot clobber remote state.
func (t *Task) ToRemoteShape(includeChecklist bool) RemoteTask {
	shape := RemoteTask{Title: t.Title}
	if t.Body.Content != "" {
		shape.Body = &ItemBody{Content: t.Body.Content, ContentType: ContentTypeText}
	}
	if t.Status != StatusUnset {
		shape.Status = t.Status
	}
	if t.Importance != "" {
		shape.Importance = t.Importance
	}
	if includeChecklist && len(t.ChecklistItems) > 0 {
		shape.ChecklistItems = append([]ChecklistItem(nil), t.ChecklistItems...)
	}
	if len(t.LinkedResources) > 0 {
		shape.LinkedResources = append([]LinkedResource(nil), t.LinkedResources...)
	}
	return shape
}

// Field selects which remote fields ApplyRemote copies.
type Field uint8

const (
	FieldStatus Field = 1 << iota
	FieldBody
	FieldChecklist
	FieldOpaque
)

// FieldsEcho is what a push or pull takes back from the remote.
const FieldsEcho = FieldStatus | FieldBody | FieldChecklist | FieldOpaque

// ApplyRemote copies the selected fields of rec onto the task. The title is
// never touched.
func (t *Task) ApplyRemote(rec *RemoteTask, fields Field) {
	if rec == nil {
		return
	}
	if fields&FieldStatus != 0 {
		t.Status = rec.Status
	}
	if fields&FieldBody != 0 {
		if rec.Body != nil {
			t.Body = *rec.Body
		} else {
			t.Body = ItemBody{ContentType: ContentTypeText}
		}
	}
	if fields&FieldChecklist != 0 {
		t.ChecklistItems = append([]ChecklistItem(nil), rec.ChecklistItems...)
	}
	if fields&FieldOpaque != 0 {
		t.DueDateTime = rec.DueDateTime
		t.Recurrence = rec.Recurrence
	}
}

// TaskList is a remote list together with its tasks.
type TaskList struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"displayName"`
	Tasks       []RemoteTask `json:"tasks,omitempty"`
}
