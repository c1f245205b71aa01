package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"clickup-mcp/clickup"
)

type recordedRequest struct {
	method string
	path   string
	body   []byte
}

func newRecordingMCP(t *testing.T, respond string) (*ClickUpMCP, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.body, _ = io.ReadAll(r.Body)
		w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)
	return NewClickUpMCP(clickup.New(srv.URL, "pk_test"), "team-1"), rec
}

func TestDispatchSpacesDefaultsTeamID(t *testing.T) {
	mcp, rec := newRecordingMCP(t, `{"spaces":[]}`)

	raw, err := mcp.dispatch(context.Background(), "clickup_get_spaces", map[string]any{})
	require.NoError(t, err)
	require.JSONEq(t, `{"spaces":[]}`, string(raw))
	require.Equal(t, "/team/team-1/space", rec.path)
}

func TestDispatchSpacesNoTeamID(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	mcp := NewClickUpMCP(clickup.New(srv.URL, "pk_test"), "")

	_, err := mcp.dispatch(context.Background(), "clickup_get_spaces", map[string]any{})
	require.ErrorContains(t, err, "team_id is required")
}

func TestDispatchListsFolderOverSpace(t *testing.T) {
	mcp, rec := newRecordingMCP(t, `{"lists":[]}`)

	_, err := mcp.dispatch(context.Background(), "clickup_get_lists", map[string]any{"folder_id": "f1", "space_id": "s1"})
	require.NoError(t, err)
	require.Equal(t, "/folder/f1/list", rec.path)

	_, err = mcp.dispatch(context.Background(), "clickup_get_lists", map[string]any{"space_id": "s1"})
	require.NoError(t, err)
	require.Equal(t, "/space/s1/list", rec.path)

	_, err = mcp.dispatch(context.Background(), "clickup_get_lists", map[string]any{})
	require.ErrorContains(t, err, "folder_id or space_id is required")
}

func TestDispatchCreateTaskPayload(t *testing.T) {
	mcp, rec := newRecordingMCP(t, `{"id":"task-1"}`)

	_, err := mcp.dispatch(context.Background(), "clickup_create_task", map[string]any{
		"list_id":     "l1",
		"name":        "Ship it",
		"description": "before friday",
		"priority":    "2",
		"due_date":    "1735689600000",
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, rec.method)
	require.Equal(t, "/list/l1/task", rec.path)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.body, &payload))
	require.Equal(t, "Ship it", payload["name"])
	require.Equal(t, "before friday", payload["description"])
	require.EqualValues(t, 2, payload["priority"])
	require.EqualValues(t, 1735689600000, payload["due_date"])
}

func TestDispatchCreateTaskBadPriority(t *testing.T) {
	mcp, _ := newRecordingMCP(t, `{}`)
	_, err := mcp.dispatch(context.Background(), "clickup_create_task", map[string]any{
		"list_id":  "l1",
		"name":     "x",
		"priority": "urgent",
	})
	require.ErrorContains(t, err, "invalid priority")
}

func TestDispatchDeleteTask(t *testing.T) {
	mcp, rec := newRecordingMCP(t, `{}`)
	_, err := mcp.dispatch(context.Background(), "clickup_delete_task", map[string]any{"task_id": "t9"})
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, rec.method)
	require.Equal(t, "/task/t9", rec.path)
}

func TestDispatchUnknownTool(t *testing.T) {
	mcp, _ := newRecordingMCP(t, `{}`)
	_, err := mcp.dispatch(context.Background(), "clickup_launch_rocket", nil)
	require.ErrorContains(t, err, "unknown tool")
}
