package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// RequestURL receives the request envelope (POST); the resolution is
	// carried synchronously in the response body as {result} or
	// {error:{message}}.
	RequestURL string

	// HealthURL, when set, is probed on Connect (GET, expecting 2xx).
	HealthURL string

	RequestTimeout time.Duration // default 30s
	HTTPClient     *http.Client
}

// HTTPTransport is the plain request/response transport. There is no
// stream, no reconnection, and no heartbeat: each request is a single
// round trip with the same always-resolved Result contract as the
// streaming transport.
type HTTPTransport struct {
	cfg   HTTPConfig
	httpc *http.Client
	ids   *idGenerator
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &HTTPTransport{cfg: cfg, httpc: cfg.HTTPClient, ids: newIDGenerator()}
}

func (t *HTTPTransport) Kind() Kind { return KindHTTP }

// Connect validates that the endpoint is reachable. With no HealthURL
// configured it is a no-op.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.cfg.HealthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) Disconnect() error { return nil }

// SendRequest posts the envelope and decodes the synchronous response.
func (t *HTTPTransport) SendRequest(ctx context.Context, operation string, params any) Result {
	started := time.Now()
	id := t.ids.next()

	raw, err := marshalParams(params)
	if err != nil {
		return NewResult(operation, id, started, nil, err.Error())
	}

	env := Envelope{ProtocolVersion: ProtocolVersion, ID: id, Method: operation, Params: raw}
	body, err := json.Marshal(env)
	if err != nil {
		return NewResult(operation, id, started, nil, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.RequestURL, bytes.NewReader(body))
	if err != nil {
		return NewResult(operation, id, started, nil, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return NewResult(operation, id, started, nil, fmt.Sprintf("send failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return NewResult(operation, id, started, nil, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewResult(operation, id, started, nil, fmt.Sprintf("request endpoint returned status %d", resp.StatusCode))
	}

	var f frame
	if err := json.Unmarshal(respBody, &f); err != nil {
		return NewResult(operation, id, started, nil, fmt.Sprintf("malformed response: %v", err))
	}
	if f.Error != nil {
		msg := f.Error.Message
		if msg == "" {
			msg = "remote error"
		}
		return NewResult(operation, id, started, nil, msg)
	}
	return NewResult(operation, id, started, f.Result, "")
}
