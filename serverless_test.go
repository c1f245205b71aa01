package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"clickup-mcp/clickup"
)

func newTestMCP(t *testing.T, api http.Handler) *ClickUpMCP {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClickUpMCP(clickup.New(srv.URL, "pk_test"), "team-1")
}

func callRPC(t *testing.T, h http.HandlerFunc, body string) jsonrpcResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/mcp", strings.NewReader(body))
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp jsonrpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServerlessInitialize(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(), `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, serverlessProtocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	require.Equal(t, "clickup-mcp", info["name"])
}

func TestServerlessToolsList(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(), `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, len(toolDefs))

	byName := make(map[string]map[string]any)
	for _, raw := range tools {
		tool := raw.(map[string]any)
		byName[tool["name"].(string)] = tool
	}
	create, ok := byName["clickup_create_task"]
	require.True(t, ok)
	schema := create["inputSchema"].(map[string]any)
	require.Equal(t, "object", schema["type"])
	require.ElementsMatch(t, []any{"list_id", "name"}, schema["required"].([]any))
}

func TestServerlessToolCall(t *testing.T) {
	mcp := newTestMCP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/team", r.URL.Path)
		require.Equal(t, "pk_test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"teams":[{"id":"t1","name":"Acme"}]}`))
	}))

	resp := callRPC(t, mcp.ServerlessHandler(),
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"clickup_get_workspaces"}}`)

	require.Nil(t, resp.Error)
	content := resp.Result.(map[string]any)["content"].([]any)
	require.Len(t, content, 1)
	block := content[0].(map[string]any)
	require.Equal(t, "text", block["type"])
	require.JSONEq(t, `{"teams":[{"id":"t1","name":"Acme"}]}`, block["text"].(string))
}

func TestServerlessToolCallMissingArg(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(),
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"clickup_get_tasks"}}`)

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInternalError, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "list_id is required")
}

func TestServerlessParseError(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(), `{not json`)

	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestServerlessInvalidVersion(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(), `{"jsonrpc":"1.0","id":5,"method":"initialize"}`)

	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestServerlessMethodNotFound(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	resp := callRPC(t, mcp.ServerlessHandler(), `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)

	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestServerlessNotificationAccepted(t *testing.T) {
	mcp := newTestMCP(t, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	mcp.ServerlessHandler()(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}
