package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// closedMessage is the failure reason pending requests resolve with when
// the transport is torn down.
const closedMessage = "transport closed"

// maxFrameSize bounds a single inbound frame. Frames beyond this are a
// protocol violation and terminate the read loop.
const maxFrameSize = 1 << 20

// Phase is the connection lifecycle state of the streaming transport.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Reconnecting
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StreamConfig configures a StreamTransport.
type StreamConfig struct {
	// StreamURL is the long-lived server-push endpoint (GET). Inbound
	// frames are newline-delimited UTF-8 JSON.
	StreamURL string

	// RequestURL is the side channel (POST) carrying outbound requests.
	// The response body is ignored; resolution arrives on the stream.
	RequestURL string

	// HealthURL is probed (GET, expecting 2xx) before the stream is
	// opened. Empty skips the probe.
	HealthURL string

	RequestTimeout    time.Duration // default 30s
	ConnectTimeout    time.Duration // default 10s
	HeartbeatInterval time.Duration // default 30s

	BaseReconnectDelay   time.Duration // default 1s
	MaxReconnectDelay    time.Duration // default 30s
	MaxReconnectAttempts int           // default 5

	HTTPClient *http.Client
}

func (c *StreamConfig) withDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.HTTPClient == nil {
		// No client-level timeout: it would sever the long-lived stream.
		c.HTTPClient = &http.Client{}
	}
}

// frame is the inbound wire shape. A frame naming an event category is
// dispatched to subscribers; an untyped frame carrying an id resolves the
// matching pending request.
type frame struct {
	Event  string          `json:"event,omitempty"`
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *frameError     `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type frameError struct {
	Message string `json:"message"`
}

// StreamTransport is the streaming client transport: a long-lived
// server-push subscription for inbound frames plus an HTTP POST side
// channel for outbound requests, correlated by request id. Stream-level
// failures drive bounded-backoff reconnection without disturbing pending
// requests that are still within their deadline.
type StreamTransport struct {
	cfg   StreamConfig
	httpc *http.Client
	bus   *Bus
	table *CorrelationTable
	ids   *idGenerator
	sup   *reconnectSupervisor

	mu            sync.Mutex
	phase         Phase
	gen           int
	lastHeartbeat time.Time
	stopHeartbeat func()
	cancelStream  context.CancelFunc
	waiters       []chan error
}

func NewStreamTransport(cfg StreamConfig) *StreamTransport {
	cfg.withDefaults()
	return &StreamTransport{
		cfg:   cfg,
		httpc: cfg.HTTPClient,
		bus:   NewBus(),
		table: NewCorrelationTable(),
		ids:   newIDGenerator(),
		sup:   newReconnectSupervisor(cfg.BaseReconnectDelay, cfg.MaxReconnectDelay, cfg.MaxReconnectAttempts),
	}
}

func (t *StreamTransport) Kind() Kind { return KindSSE }

// Events exposes the subscriber registry for unsolicited frames,
// heartbeats, and transport errors.
func (t *StreamTransport) Events() *Bus { return t.bus }

// Subscribe registers a listener for an event category and returns its
// unsubscribe function.
func (t *StreamTransport) Subscribe(category string, fn func(payload any)) func() {
	return t.bus.Subscribe(category, fn)
}

// Phase reports the current connection phase.
func (t *StreamTransport) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// LastHeartbeatAt reports the timestamp of the most recent heartbeat.
// Staleness detection is the caller's concern.
func (t *StreamTransport) LastHeartbeatAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHeartbeat
}

// Connect resolves once the transport reaches Connected, or fails after
// the configured connect timeout. Concurrent calls while already
// connecting or connected never open a second stream.
func (t *StreamTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.phase == Connected {
		t.mu.Unlock()
		return nil
	}
	if t.phase == Disconnected {
		t.phase = Connecting
		t.sup.reset()
		t.gen++
		gen := t.gen
		go t.open(gen)
	}
	ch := make(chan error, 1)
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	timer := time.NewTimer(t.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("connection timeout")
	}
}

// Disconnect cancels all timers, closes the stream, and drains every
// pending request with a "transport closed" failure.
func (t *StreamTransport) Disconnect() error {
	t.mu.Lock()
	if t.phase == Disconnected {
		t.mu.Unlock()
		return nil
	}
	t.phase = Disconnected
	t.gen++
	t.stopTimersLocked()
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	t.sup.stop()
	t.table.Drain(closedMessage)
	for _, ch := range waiters {
		ch <- errors.New(closedMessage)
	}
	log.Printf("stream: disconnected")
	return nil
}

// SendRequest registers a pending entry, transmits the request on the
// side channel, and blocks until the entry resolves: by a matching frame,
// by its deadline, or by transport shutdown. It always returns a Result;
// callers inspect Success rather than catching errors.
func (t *StreamTransport) SendRequest(ctx context.Context, operation string, params any) Result {
	started := time.Now()
	id := t.ids.next()

	raw, err := marshalParams(params)
	if err != nil {
		return NewResult(operation, id, started, nil, err.Error())
	}

	done := make(chan Outcome, 1)
	if err := t.table.Register(id, t.cfg.RequestTimeout, func(out Outcome) { done <- out }); err != nil {
		return NewResult(operation, id, started, nil, err.Error())
	}

	env := Envelope{ProtocolVersion: ProtocolVersion, ID: id, Method: operation, Params: raw}
	if err := t.transmit(ctx, env); err != nil {
		// A side-channel failure fails the entry now, not at its deadline.
		t.table.Resolve(id, Outcome{ErrMsg: fmt.Sprintf("send failed: %v", err)})
	}

	out := <-done
	if out.OK {
		return NewResult(operation, id, started, out.Data, "")
	}
	return NewResult(operation, id, started, nil, out.ErrMsg)
}

func (t *StreamTransport) transmit(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.RequestURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stream lifecycle
// ---------------------------------------------------------------------------

func (t *StreamTransport) open(gen int) {
	if err := t.probe(); err != nil {
		t.streamFailed(gen, fmt.Errorf("liveness probe: %w", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if gen != t.gen || t.phase != Connecting {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancelStream = cancel
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.StreamURL, nil)
	if err != nil {
		t.streamFailed(gen, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream, application/x-ndjson")
	resp, err := t.httpc.Do(req)
	if err != nil {
		t.streamFailed(gen, err)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		t.streamFailed(gen, fmt.Errorf("stream open: status %d", resp.StatusCode))
		return
	}

	// A 2xx with a streaming body is the open acknowledgment.
	t.mu.Lock()
	if gen != t.gen || t.phase != Connecting {
		t.mu.Unlock()
		resp.Body.Close()
		return
	}
	t.phase = Connected
	t.lastHeartbeat = time.Now()
	t.stopHeartbeat = t.startHeartbeat()
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	t.sup.reset()
	for _, ch := range waiters {
		ch <- nil
	}
	log.Printf("stream: connected to %s", t.cfg.StreamURL)

	go t.readLoop(gen, resp.Body)
}

func (t *StreamTransport) probe() error {
	if t.cfg.HealthURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ConnectTimeout)
	defer cancel()
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

func (t *StreamTransport) readLoop(gen int, body io.ReadCloser) {
	defer body.Close()
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for sc.Scan() {
		t.handleFrame(sc.Bytes())
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	t.streamFailed(gen, fmt.Errorf("stream read: %w", err))
}

// streamFailed handles stream-open failure and error-after-open: the
// transport enters Reconnecting and the supervisor schedules the next
// attempt. Pending requests within their deadline are left untouched.
func (t *StreamTransport) streamFailed(gen int, cause error) {
	t.mu.Lock()
	if gen != t.gen || t.phase == Disconnected {
		t.mu.Unlock()
		return
	}
	t.stopTimersLocked()
	t.phase = Reconnecting
	t.mu.Unlock()

	log.Printf("stream: failure: %v", cause)

	scheduled := t.sup.next(func() {
		t.mu.Lock()
		if t.phase != Reconnecting {
			t.mu.Unlock()
			return
		}
		t.phase = Connecting
		t.gen++
		g := t.gen
		t.mu.Unlock()
		t.open(g)
	})
	if scheduled {
		return
	}

	// Terminal: no further reconnect. Surface to pending connect callers,
	// otherwise only log and publish.
	t.mu.Lock()
	t.phase = Disconnected
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	terminal := fmt.Errorf("max reconnection attempts reached: %w", cause)
	for _, ch := range waiters {
		ch <- terminal
	}
	t.bus.Publish(EventError, terminal.Error())
}

// stopTimersLocked cancels the heartbeat and the stream context. Every
// transition that leaves Connected or Connecting goes through here so no
// timer outlives the state that started it.
func (t *StreamTransport) stopTimersLocked() {
	if t.stopHeartbeat != nil {
		t.stopHeartbeat()
		t.stopHeartbeat = nil
	}
	if t.cancelStream != nil {
		t.cancelStream()
		t.cancelStream = nil
	}
}

func (t *StreamTransport) startHeartbeat() func() {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case now := <-ticker.C:
				t.mu.Lock()
				t.lastHeartbeat = now
				t.mu.Unlock()
				t.bus.Publish(EventHeartbeat, now)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// ---------------------------------------------------------------------------
// Inbound frames
// ---------------------------------------------------------------------------

// handleFrame routes one inbound line. Malformed payloads are logged and
// dropped; they never terminate the stream or touch other pending
// requests.
func (t *StreamTransport) handleFrame(line []byte) {
	line = bytes.TrimSpace(line)
	// Tolerate SSE framing: strip the data field prefix, skip comments.
	line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(line) == 0 || line[0] == ':' {
		return
	}

	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		log.Printf("stream: dropping malformed frame: %v", err)
		return
	}

	switch {
	case f.Event != "":
		t.bus.Publish(f.Event, f.Data)
	case f.ID != "":
		out := Outcome{}
		if f.Error != nil {
			out.ErrMsg = f.Error.Message
			if out.ErrMsg == "" {
				out.ErrMsg = "remote error"
			}
		} else {
			out.OK = true
			out.Data = f.Result
		}
		if !t.table.Resolve(f.ID, out) {
			// Late or unknown id: unsolicited, route to subscribers.
			t.bus.Publish(EventMessage, json.RawMessage(bytes.Clone(line)))
		}
	default:
		t.bus.Publish(EventMessage, json.RawMessage(bytes.Clone(line)))
	}
}
