// Package clickup is a thin client for the ClickUp REST API v2. It
// carries requests and returns response bodies untouched; interpreting
// task, list, and folder semantics is the caller's concern.
package clickup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIEndpoint is the production ClickUp API base URL.
const APIEndpoint = "https://api.clickup.com/api/v2"

// Client talks to the ClickUp REST API with a static API token.
type Client struct {
	base  string
	token string
	httpc *http.Client
}

func New(base, token string) *Client {
	if base == "" {
		base = APIEndpoint
	}
	return &Client{
		base:  base,
		token: token,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the error shape ClickUp returns on non-2xx responses.
type apiError struct {
	Err   string `json:"err"`
	Ecode string `json:"ECODE"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && ae.Err != "" {
			return nil, fmt.Errorf("clickup: %s (%s, status %d)", ae.Err, ae.Ecode, resp.StatusCode)
		}
		return nil, fmt.Errorf("clickup: status %d", resp.StatusCode)
	}
	return respBody, nil
}

// ---------------------------------------------------------------------------
// Workspace hierarchy
// ---------------------------------------------------------------------------

// GetWorkspaces lists the teams (workspaces) the token can see.
func (c *Client) GetWorkspaces(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/team", nil)
}

func (c *Client) GetSpaces(ctx context.Context, teamID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/team/"+url.PathEscape(teamID)+"/space", nil)
}

func (c *Client) GetFolders(ctx context.Context, spaceID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/space/"+url.PathEscape(spaceID)+"/folder", nil)
}

func (c *Client) GetLists(ctx context.Context, folderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/folder/"+url.PathEscape(folderID)+"/list", nil)
}

// GetFolderlessLists lists the lists that live directly under a space.
func (c *Client) GetFolderlessLists(ctx context.Context, spaceID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/space/"+url.PathEscape(spaceID)+"/list", nil)
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (c *Client) GetTasks(ctx context.Context, listID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/list/"+url.PathEscape(listID)+"/task", nil)
}

func (c *Client) GetTask(ctx context.Context, taskID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(taskID), nil)
}

// CreateTask posts the payload to a list unmodified.
func (c *Client) CreateTask(ctx context.Context, listID string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/list/"+url.PathEscape(listID)+"/task", payload)
}

func (c *Client) UpdateTask(ctx context.Context, taskID string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, "/task/"+url.PathEscape(taskID), payload)
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/task/"+url.PathEscape(taskID), nil)
}
