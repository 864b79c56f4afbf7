// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes arbor tree tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/tree"
	"github.com/starford/arbor/internal/treeservice"
)

const rulesURI = "arbor://tree-rules"

// Server wraps the MCP server with arbor tools.
type Server struct {
	mcp *server.MCPServer
	svc *treeservice.Service
}

// New creates a new MCP server with all tree tools registered.
func New(svc *treeservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Arbor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Return the whole folder/note tree as nested JSON, including item ids."),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("list_rows",
		mcp.WithDescription("List the currently visible rows in display order with their depth."),
	), s.listRows)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a folder or note. It is appended as the last child of its parent. "+
			"Read the rules first via get_tree_rules or the "+rulesURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(string(models.KindFolder), string(models.KindNote))),
		mcp.WithString("parent_id", mcp.Description("Parent folder id (empty for the root level)")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("rename_item",
		mcp.WithDescription("Change the display name of an item."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
	), s.renameItem)

	s.mcp.AddTool(mcp.NewTool("move_item",
		mcp.WithDescription("Move an item onto a folder (last child) or after a note. "+
			"Set to_root to move it to the root level instead."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("target_id", mcp.Description("Folder or note to drop onto")),
		mcp.WithBoolean("to_root", mcp.Description("Move to the root level")),
	), s.moveItem)

	s.mcp.AddTool(mcp.NewTool("promote_item",
		mcp.WithDescription("Move an item up to its grandparent."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.promoteItem)

	s.mcp.AddTool(mcp.NewTool("delete_item",
		mcp.WithDescription("Delete an item and everything beneath it. This cannot be undone."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.deleteItem)

	s.mcp.AddTool(mcp.NewTool("get_tree_rules",
		mcp.WithDescription("Returns the structural rules tree edits must follow."),
	), s.getTreeRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Tree Rules",
			mcp.WithResourceDescription("Structural rules for folders, notes and moves."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTreeRulesResource,
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

// toolResult converts an engine result into tool output.
func toolResult(res tree.Result) *mcp.CallToolResult {
	if !res.Success {
		return mcp.NewToolResultError(res.Message)
	}
	if res.ID != "" {
		return mcp.NewToolResultText(fmt.Sprintf("%s (id: %s)", res.Message, res.ID))
	}
	return mcp.NewToolResultText(res.Message)
}

func (s *Server) getTree(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, _, err := s.svc.Tree()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) listRows(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows := s.svc.Rows()
	if rows == nil {
		rows = []models.Row{}
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := treeservice.CreateInput{
		ParentID: req.GetString("parent_id", models.RootID),
		Name:     name,
		Kind:     models.Kind(kind),
	}
	return toolResult(s.svc.Create(ctx, in)), nil
}

func (s *Server) renameItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.svc.Rename(ctx, id, treeservice.RenameInput{Name: name})), nil
}

func (s *Server) moveItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := treeservice.MoveInput{
		TargetID: req.GetString("target_id", ""),
		ToRoot:   req.GetBool("to_root", false),
	}
	return toolResult(s.svc.Move(ctx, id, in)), nil
}

func (s *Server) promoteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.svc.Promote(ctx, id)), nil
}

func (s *Server) deleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolResult(s.svc.Delete(ctx, id)), nil
}

func (s *Server) getTreeRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TreeRulesContract), nil
}

func (s *Server) readTreeRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     TreeRulesContract,
		},
	}, nil
}
