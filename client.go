package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clickup-mcp/transport"
)

// UnifiedClient holds one transport per kind with exactly one active at a
// time. It is the composing root for the client side: transports are
// handed in at construction, never looked up through ambient state, and
// every call delegates to the single active transport.
type UnifiedClient struct {
	mu         sync.Mutex
	transports map[transport.Kind]transport.Transport
	active     transport.Kind
	connected  bool
}

// NewUnifiedClient builds a client over the given transports. The first
// transport is the initially selected one (not yet connected).
func NewUnifiedClient(ts ...transport.Transport) *UnifiedClient {
	c := &UnifiedClient{transports: make(map[transport.Kind]transport.Transport)}
	for i, t := range ts {
		c.transports[t.Kind()] = t
		if i == 0 {
			c.active = t.Kind()
		}
	}
	return c
}

// Connect connects the active transport.
func (c *UnifiedClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	t, ok := c.transports[c.active]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no transport configured for %s", c.active)
	}
	if err := t.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Use switches the active transport, disconnecting the previous one
// first. Switching to the already-active kind is a no-op.
func (c *UnifiedClient) Use(ctx context.Context, kind transport.Kind) error {
	c.mu.Lock()
	if kind == c.active && c.connected {
		c.mu.Unlock()
		return nil
	}
	next, ok := c.transports[kind]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("no transport configured for %s", kind)
	}
	prev := c.transports[c.active]
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected && prev != nil {
		if err := prev.Disconnect(); err != nil {
			return fmt.Errorf("disconnect %s: %w", prev.Kind(), err)
		}
	}
	if err := next.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = kind
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Active reports the currently selected transport kind.
func (c *UnifiedClient) Active() transport.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Call delegates an operation to the active transport. Like the
// transports themselves it always returns a Result; a missing transport
// is a failed result, not an error.
func (c *UnifiedClient) Call(ctx context.Context, operation string, params any) transport.Result {
	c.mu.Lock()
	t, ok := c.transports[c.active]
	c.mu.Unlock()
	if !ok {
		return transport.NewResult(operation, "", time.Now(), nil, fmt.Sprintf("no transport configured for %s", c.active))
	}
	return t.SendRequest(ctx, operation, params)
}

// Close disconnects every transport.
func (c *UnifiedClient) Close() error {
	c.mu.Lock()
	ts := make([]transport.Transport, 0, len(c.transports))
	for _, t := range c.transports {
		ts = append(ts, t)
	}
	c.connected = false
	c.mu.Unlock()

	var firstErr error
	for _, t := range ts {
		if err := t.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
