package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// ---------------------------------------------------------------------------
// Serverless MCP handshake
// ---------------------------------------------------------------------------
// Function hosts hand us one HTTP POST per JSON-RPC message, so the full
// mcp-go server (which owns its own lifecycle) does not fit. This is the
// minimal handshake a serverless deployment needs: initialize,
// tools/list, and tools/call on a single handler.

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id,omitempty"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const serverlessProtocolVersion = "2024-11-05"

func rpcError(id any, code int, msg string, data any) *jsonrpcResponse {
	return &jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	}
}

// ServerlessHandler returns the single-POST MCP endpoint.
func (t *ClickUpMCP) ServerlessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, rpcError(nil, codeParseError, "Parse error", err.Error()))
			return
		}
		if req.JSONRPC != "2.0" {
			writeJSON(w, http.StatusOK, rpcError(req.ID, codeInvalidRequest, "Invalid Request - JSON-RPC 2.0 required", nil))
			return
		}

		resp := t.handleRPC(r, &req)
		if resp == nil {
			// Notification: acknowledged, no body.
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (t *ClickUpMCP) handleRPC(r *http.Request, req *jsonrpcRequest) *jsonrpcResponse {
	switch req.Method {
	case "initialize":
		return &jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": serverlessProtocolVersion,
				"capabilities": map[string]any{
					"tools": map[string]any{"listChanged": false},
				},
				"serverInfo": map[string]any{
					"name":    "clickup-mcp",
					"version": "1.0.0",
				},
			},
		}

	case "initialized", "notifications/initialized":
		return nil

	case "ping":
		return &jsonrpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}

	case "tools/list":
		return &jsonrpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"tools": toolDescriptors()},
		}

	case "tools/call":
		return t.handleRPCToolCall(r, req)

	default:
		return rpcError(req.ID, codeMethodNotFound, "Method not found: "+req.Method, nil)
	}
}

func (t *ClickUpMCP) handleRPCToolCall(r *http.Request, req *jsonrpcRequest) *jsonrpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	raw, err := t.dispatch(r.Context(), params.Name, params.Arguments)
	if err != nil {
		log.Printf("serverless: tool %s failed: %v", params.Name, err)
		return rpcError(req.ID, codeInternalError, err.Error(), nil)
	}

	return &jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": string(raw)},
			},
		},
	}
}

// toolDescriptors renders the tool table in the wire shape tools/list
// expects.
func toolDescriptors() []map[string]any {
	out := make([]map[string]any, 0, len(toolDefs))
	for _, def := range toolDefs {
		props := make(map[string]any)
		var required []string
		for _, p := range def.params {
			props[p.name] = map[string]any{"type": "string", "description": p.desc}
			if p.required {
				required = append(required, p.name)
			}
		}
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		out = append(out, map[string]any{
			"name":        def.name,
			"description": def.desc,
			"inputSchema": schema,
		})
	}
	return out
}
