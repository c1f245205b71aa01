// Package n8n provides the N8N-flavored façade transport: requests are
// handed to an N8N workflow over its webhook URL, and resolutions come
// back either on an inbound callback route or through polling. Webhook
// registrations live in a sqlite-backed store owned by the composing
// root, never in package-level state.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"clickup-mcp/transport"
)

// FacadeConfig configures a Facade.
type FacadeConfig struct {
	// WebhookURL is the N8N workflow webhook that receives request
	// envelopes (POST).
	WebhookURL string

	// PollURL, when set, is polled for resolution frames (GET returning a
	// JSON array of frames) as a fallback for workflows that cannot call
	// back.
	PollURL      string
	PollInterval time.Duration // default 5s

	RequestTimeout time.Duration // default 30s
	HTTPClient     *http.Client
}

// Facade implements transport.Transport with KindN8N. It shares the
// correlation-table semantics of the streaming transport: every request
// resolves exactly once, by callback, poll, deadline, or shutdown.
type Facade struct {
	cfg   FacadeConfig
	httpc *http.Client
	bus   *transport.Bus
	table *transport.CorrelationTable

	mu       sync.Mutex
	running  bool
	stopPoll context.CancelFunc
}

func NewFacade(cfg FacadeConfig) *Facade {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Facade{
		cfg:   cfg,
		httpc: cfg.HTTPClient,
		bus:   transport.NewBus(),
		table: transport.NewCorrelationTable(),
	}
}

func (f *Facade) Kind() transport.Kind { return transport.KindN8N }

// Events exposes the subscriber registry for unsolicited callbacks.
func (f *Facade) Events() *transport.Bus { return f.bus }

// Connect starts the polling loop when a poll URL is configured. The
// webhook side needs no handshake.
func (f *Facade) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	f.running = true
	if f.cfg.PollURL != "" {
		pollCtx, cancel := context.WithCancel(context.Background())
		f.stopPoll = cancel
		go f.pollLoop(pollCtx)
	}
	return nil
}

// Disconnect stops polling and fails every pending request.
func (f *Facade) Disconnect() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	if f.stopPoll != nil {
		f.stopPoll()
		f.stopPoll = nil
	}
	f.mu.Unlock()

	f.table.Drain("transport closed")
	return nil
}

// SendRequest posts the envelope to the workflow webhook and waits for
// the callback or poll result, with the same always-resolved contract as
// the other transports.
func (f *Facade) SendRequest(ctx context.Context, operation string, params any) transport.Result {
	started := time.Now()
	id := "n8n_" + uuid.NewString()

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return transport.NewResult(operation, id, started, nil, fmt.Sprintf("marshal params: %v", err))
		}
		raw = b
	}

	done := make(chan transport.Outcome, 1)
	if err := f.table.Register(id, f.cfg.RequestTimeout, func(out transport.Outcome) { done <- out }); err != nil {
		return transport.NewResult(operation, id, started, nil, err.Error())
	}

	env := transport.Envelope{ProtocolVersion: transport.ProtocolVersion, ID: id, Method: operation, Params: raw}
	if err := f.post(ctx, env); err != nil {
		f.table.Resolve(id, transport.Outcome{ErrMsg: fmt.Sprintf("send failed: %v", err)})
	}

	out := <-done
	if out.OK {
		return transport.NewResult(operation, id, started, out.Data, "")
	}
	return transport.NewResult(operation, id, started, nil, out.ErrMsg)
}

func (f *Facade) post(ctx context.Context, env transport.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Inbound resolutions
// ---------------------------------------------------------------------------

// callbackFrame is what workflows post back: a correlation resolution or
// a named event.
type callbackFrame struct {
	Event  string          `json:"event,omitempty"`
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CallbackHandler returns the HTTP handler the composing root mounts for
// workflow callbacks.
func (f *Facade) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if !f.handleFrame(body) {
			http.Error(w, "malformed callback", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

// handleFrame routes one inbound frame, reporting whether it parsed.
func (f *Facade) handleFrame(body []byte) bool {
	var cb callbackFrame
	if err := json.Unmarshal(body, &cb); err != nil {
		log.Printf("n8n: dropping malformed callback: %v", err)
		return false
	}
	switch {
	case cb.Event != "":
		f.bus.Publish(cb.Event, cb.Data)
	case cb.ID != "":
		out := transport.Outcome{}
		if cb.Error != nil {
			out.ErrMsg = cb.Error.Message
			if out.ErrMsg == "" {
				out.ErrMsg = "remote error"
			}
		} else {
			out.OK = true
			out.Data = cb.Result
		}
		if !f.table.Resolve(cb.ID, out) {
			f.bus.Publish(transport.EventMessage, json.RawMessage(bytes.Clone(body)))
		}
	default:
		f.bus.Publish(transport.EventMessage, json.RawMessage(bytes.Clone(body)))
	}
	return true
}

func (f *Facade) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *Facade) pollOnce(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.PollURL, nil)
	if err != nil {
		return
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		log.Printf("n8n: poll failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("n8n: poll returned status %d", resp.StatusCode)
		io.Copy(io.Discard, resp.Body)
		return
	}
	var frames []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		log.Printf("n8n: dropping malformed poll body: %v", err)
		return
	}
	for _, fr := range frames {
		f.handleFrame(fr)
	}
}
