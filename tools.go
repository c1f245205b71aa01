package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"clickup-mcp/clickup"
)

// ---------------------------------------------------------------------------
// ClickUpMCP — server state
// ---------------------------------------------------------------------------

// ClickUpMCP adapts the ClickUp REST API to MCP tools. Every tool is a
// pass-through: arguments go to ClickUp unchanged, response bodies come
// back unchanged.
type ClickUpMCP struct {
	api    *clickup.Client
	teamID string
}

func NewClickUpMCP(api *clickup.Client, teamID string) *ClickUpMCP {
	return &ClickUpMCP{api: api, teamID: teamID}
}

// ---------------------------------------------------------------------------
// Tool table
// ---------------------------------------------------------------------------

// toolParam describes one string argument of a tool.
type toolParam struct {
	name     string
	desc     string
	required bool
}

type toolDef struct {
	name   string
	desc   string
	params []toolParam
}

// toolDefs is the single source for both the mcp-go server and the
// serverless handshake handlers.
var toolDefs = []toolDef{
	{"clickup_get_workspaces", "List the workspaces (teams) visible to the API token.", nil},
	{"clickup_get_spaces", "List spaces in a workspace.", []toolParam{
		{"team_id", "Workspace (team) ID; defaults to CLICKUP_TEAM_ID", false},
	}},
	{"clickup_get_folders", "List folders in a space.", []toolParam{
		{"space_id", "Space ID", true},
	}},
	{"clickup_get_lists", "List lists in a folder, or folderless lists in a space.", []toolParam{
		{"folder_id", "Folder ID", false},
		{"space_id", "Space ID (for folderless lists)", false},
	}},
	{"clickup_get_tasks", "List tasks in a list.", []toolParam{
		{"list_id", "List ID", true},
	}},
	{"clickup_get_task", "Get a single task by ID.", []toolParam{
		{"task_id", "Task ID", true},
	}},
	{"clickup_create_task", "Create a task in a list.", []toolParam{
		{"list_id", "List ID", true},
		{"name", "Task name", true},
		{"description", "Task description", false},
		{"status", "Status name", false},
		{"priority", "Priority 1 (urgent) to 4 (low)", false},
		{"due_date", "Due date as unix milliseconds", false},
	}},
	{"clickup_update_task", "Update fields of an existing task.", []toolParam{
		{"task_id", "Task ID", true},
		{"name", "New task name", false},
		{"description", "New description", false},
		{"status", "New status name", false},
		{"priority", "Priority 1 (urgent) to 4 (low)", false},
		{"due_date", "Due date as unix milliseconds", false},
	}},
	{"clickup_delete_task", "Delete a task.", []toolParam{
		{"task_id", "Task ID", true},
	}},
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// dispatch routes a tool invocation to the ClickUp client. Shared by the
// mcp-go tool handlers and the serverless handshake.
func (t *ClickUpMCP) dispatch(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	str := func(k string) string {
		v, _ := args[k].(string)
		return v
	}

	switch name {
	case "clickup_get_workspaces":
		return t.api.GetWorkspaces(ctx)

	case "clickup_get_spaces":
		teamID := str("team_id")
		if teamID == "" {
			teamID = t.teamID
		}
		if teamID == "" {
			return nil, fmt.Errorf("team_id is required (or set CLICKUP_TEAM_ID)")
		}
		return t.api.GetSpaces(ctx, teamID)

	case "clickup_get_folders":
		spaceID := str("space_id")
		if spaceID == "" {
			return nil, fmt.Errorf("space_id is required")
		}
		return t.api.GetFolders(ctx, spaceID)

	case "clickup_get_lists":
		if folderID := str("folder_id"); folderID != "" {
			return t.api.GetLists(ctx, folderID)
		}
		if spaceID := str("space_id"); spaceID != "" {
			return t.api.GetFolderlessLists(ctx, spaceID)
		}
		return nil, fmt.Errorf("folder_id or space_id is required")

	case "clickup_get_tasks":
		listID := str("list_id")
		if listID == "" {
			return nil, fmt.Errorf("list_id is required")
		}
		return t.api.GetTasks(ctx, listID)

	case "clickup_get_task":
		taskID := str("task_id")
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		return t.api.GetTask(ctx, taskID)

	case "clickup_create_task":
		listID := str("list_id")
		if listID == "" {
			return nil, fmt.Errorf("list_id is required")
		}
		if str("name") == "" {
			return nil, fmt.Errorf("name is required")
		}
		payload, err := taskPayload(args)
		if err != nil {
			return nil, err
		}
		return t.api.CreateTask(ctx, listID, payload)

	case "clickup_update_task":
		taskID := str("task_id")
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		payload, err := taskPayload(args)
		if err != nil {
			return nil, err
		}
		return t.api.UpdateTask(ctx, taskID, payload)

	case "clickup_delete_task":
		taskID := str("task_id")
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		return t.api.DeleteTask(ctx, taskID)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// taskPayload assembles the ClickUp task body from tool arguments,
// forwarding fields untouched except for the numeric conversions the API
// requires.
func taskPayload(args map[string]any) (json.RawMessage, error) {
	payload := make(map[string]any)
	for _, k := range []string{"name", "description", "status"} {
		if v, ok := args[k].(string); ok && v != "" {
			payload[k] = v
		}
	}
	if v, ok := args["priority"].(string); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid priority: %s", v)
		}
		payload["priority"] = p
	}
	if v, ok := args["due_date"].(string); ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid due_date: %s", v)
		}
		payload["due_date"] = ms
	}
	return json.Marshal(payload)
}

// ---------------------------------------------------------------------------
// Tool result helpers
// ---------------------------------------------------------------------------

func rawResult(raw json.RawMessage) *mcp.CallToolResult {
	return mcp.NewToolResultText(string(raw))
}

func errResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}

// ---------------------------------------------------------------------------
// MCP tool definitions
// ---------------------------------------------------------------------------

func (t *ClickUpMCP) toolHandler(def toolDef) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]any)
		for _, p := range def.params {
			if p.required {
				v, err := req.RequireString(p.name)
				if err != nil {
					return errResult(p.name + " is required"), nil
				}
				args[p.name] = v
				continue
			}
			if v := req.GetString(p.name, ""); v != "" {
				args[p.name] = v
			}
		}
		raw, err := t.dispatch(ctx, def.name, args)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return rawResult(raw), nil
	}
}

func defineTools(t *ClickUpMCP) []server.ServerTool {
	tools := make([]server.ServerTool, 0, len(toolDefs))
	for _, def := range toolDefs {
		opts := []mcp.ToolOption{mcp.WithDescription(def.desc)}
		for _, p := range def.params {
			popts := []mcp.PropertyOption{mcp.Description(p.desc)}
			if p.required {
				popts = append(popts, mcp.Required())
			}
			opts = append(opts, mcp.WithString(p.name, popts...))
		}
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewTool(def.name, opts...),
			Handler: t.toolHandler(def),
		})
	}
	return tools
}
