// Package transport implements the client transports used to reach a
// ClickUp MCP server: plain HTTP request/response and a streaming
// transport with request/response correlation over a server-push channel.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the version tag carried by every outbound envelope.
const ProtocolVersion = "2.0"

// Kind discriminates the transport flavor behind a handle. Dispatch on
// Kind is a switch, never a dynamic type check.
type Kind int

const (
	KindHTTP Kind = iota
	KindSSE
	KindN8N
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindSSE:
		return "sse"
	case KindN8N:
		return "n8n"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Envelope is the side-channel wire format for outbound requests.
type Envelope struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Metadata carries traceability fields on every request result.
type Metadata struct {
	Operation     string    `json:"operation"`
	CompletedAt   time.Time `json:"timestampAtCompletion"`
	ElapsedMillis int64     `json:"elapsedMillis"`
	CorrelationID string    `json:"correlationId"`
}

// Result is the outcome of a SendRequest call. Requests always resolve to
// a Result, never to an error, so bulk callers can accumulate partial
// failures without aborting the batch. Exactly one of Data or
// ErrorMessage is populated.
type Result struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Metadata     Metadata        `json:"metadata"`
}

// Transport is the common surface of all client transports.
type Transport interface {
	// Connect establishes the transport. Concurrent calls while already
	// connecting or connected must not create a second connection.
	Connect(ctx context.Context) error

	// Disconnect tears the transport down, failing every in-flight
	// request with a "transport closed" reason.
	Disconnect() error

	// SendRequest transmits an operation and resolves its result. The
	// returned Result always reports failure through Success=false; only
	// Connect and Disconnect surface errors to their caller.
	SendRequest(ctx context.Context, operation string, params any) Result

	// Kind reports the transport discriminant.
	Kind() Kind
}

// NewResult assembles a Result with completion metadata. A non-empty
// errMsg marks the result failed; exactly one of data / errMsg should be
// set.
func NewResult(operation, correlationID string, started time.Time, data json.RawMessage, errMsg string) Result {
	now := time.Now()
	return Result{
		Success:      errMsg == "",
		Data:         data,
		ErrorMessage: errMsg,
		Metadata: Metadata{
			Operation:     operation,
			CompletedAt:   now,
			ElapsedMillis: now.Sub(started).Milliseconds(),
			CorrelationID: correlationID,
		},
	}
}

// marshalParams normalizes request params into raw JSON. A nil params
// value is transmitted as an absent field.
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}

// idGenerator produces correlation ids unique for the transport lifetime:
// a monotonic counter plus a timestamp, suffixed with a per-transport
// random tag so ids never collide across reconnects or instances.
type idGenerator struct {
	counter atomic.Uint64
	tag     string
}

func newIDGenerator() *idGenerator {
	return &idGenerator{tag: uuid.NewString()[:8]}
}

func (g *idGenerator) next() string {
	return fmt.Sprintf("req_%d_%d_%s", g.counter.Add(1), time.Now().UnixMilli(), g.tag)
}
