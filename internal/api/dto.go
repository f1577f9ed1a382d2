package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tasklink/internal/models"
)

// ParseRequest is the body of POST /parse.
type ParseRequest struct {
	Line string `json:"line"`
	File string `json:"file"`
}

// Validate implements validation.Validatable.
func (r ParseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Line, validation.Required),
	)
}

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Task       *models.Task `json:"task"`
	SingleLine bool         `json:"single_line"`
}

// Validate implements validation.Validatable.
func (r RenderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Task, validation.Required),
	)
}

// RenderResponse wraps rendered Markdown.
type RenderResponse struct {
	Markdown string `json:"markdown"`
}

// SyncLinesRequest is the body of POST /sync/lines. End defaults to Start.
type SyncLinesRequest struct {
	Path    string `json:"path"`
	Start   int    `json:"start"`
	End     *int   `json:"end,omitempty"`
	Replace *bool  `json:"replace,omitempty"`
}

// Validate implements validation.Validatable.
func (r SyncLinesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Start, validation.Min(0)),
	)
}

// SyncSectionRequest is the body of POST /sync/section.
type SyncSectionRequest struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Pull bool   `json:"pull"`
}

// Validate implements validation.Validatable.
func (r SyncSectionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Line, validation.Min(0)),
	)
}

// RefsResponse wraps block link references.
type RefsResponse struct {
	Refs []models.BlockRef `json:"refs"`
}
