// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tasklink tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/noteservice"
)

const lineFormatURI = "tasklink://line-format"

// Server wraps the MCP server with tasklink tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tasklink tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"tasklink",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("parse_line",
		mcp.WithDescription("Parse one Markdown line into a task without contacting the remote store."),
		mcp.WithString("line", mcp.Required(), mcp.Description("The Markdown line")),
		mcp.WithString("file", mcp.Description("Name of the note the line comes from")),
	), s.parseLine)

	s.mcp.AddTool(mcp.NewTool("render_task",
		mcp.WithDescription("Render a task, given as JSON, back into Markdown."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task JSON as returned by parse_line")),
		mcp.WithBoolean("single_line", mcp.Description("Render only the task line, without body and checklist")),
	), s.renderTask)

	s.mcp.AddTool(mcp.NewTool("sync_lines",
		mcp.WithDescription("Sync task lines of a note with the remote task list. "+
			"New tasks are created and get a block link; linked tasks are updated. "+
			"Read the line format first via get_line_format or the "+lineFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note (e.g. daily/2026-10-19.md)")),
		mcp.WithNumber("start", mcp.Required(), mcp.Description("First line, zero-based")),
		mcp.WithNumber("end", mcp.Description("Last line, inclusive; defaults to start")),
		mcp.WithBoolean("replace", mcp.Description("Write the rendered lines back to the note (default true)")),
	), s.syncLines)

	s.mcp.AddTool(mcp.NewTool("sync_section",
		mcp.WithDescription("Sync the task at a line together with its body and checklist. "+
			"With pull set the remote state is written into the note instead."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Line of the task, zero-based")),
		mcp.WithBoolean("pull", mcp.Description("Pull remote state instead of pushing")),
	), s.syncSection)

	s.mcp.AddTool(mcp.NewTool("resolve_block_link",
		mcp.WithDescription("Look up the remote task id of a block link and the note lines that carry it."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Block link without the leading ^")),
	), s.resolveBlockLink)

	s.mcp.AddTool(mcp.NewTool("search_tasks",
		mcp.WithDescription("Find linked task lines whose title contains the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTasks)

	s.mcp.AddTool(mcp.NewTool("today",
		mcp.WithDescription("Markdown digest of open and recently completed remote tasks."),
	), s.today)

	s.mcp.AddTool(mcp.NewTool("get_line_format",
		mcp.WithDescription("Returns the task line format tasklink reads and writes. "+
			"Call this before editing task lines."),
	), s.getLineFormat)

	s.mcp.AddResource(
		mcp.NewResource(lineFormatURI, "Task Line Format",
			mcp.WithResourceDescription("Markdown task line format understood by tasklink."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLineFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) parseLine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := req.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.ParseLine(line, req.GetString("file", "")))
}

func (s *Server) renderTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var t models.Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid task JSON: %v", err)), nil
	}
	return mcp.NewToolResultText(s.svc.RenderTask(&t, req.GetBool("single_line", false))), nil
}

func (s *Server) syncLines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, err := req.RequireInt("start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end := req.GetInt("end", start)

	res, err := s.svc.SyncLines(ctx, path, start, end, req.GetBool("replace", true))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) syncSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SyncSection(ctx, path, line, req.GetBool("pull", false))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(res.Markdown), nil
}

func (s *Server) resolveBlockLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Resolve(ctx, token)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(info)
}

func (s *Server) searchTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.SearchLinks(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText("no tasks found"), nil
	}
	return jsonResult(refs)
}

func (s *Server) today(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := s.svc.Today(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(md), nil
}

func (s *Server) getLineFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LineFormatContract), nil
}

func (s *Server) readLineFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      lineFormatURI,
			MIMEType: "text/markdown",
			Text:     LineFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns service errors into messages a model can act on.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("the note changed during the sync; re-read it and retry")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
