package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clickup-mcp/transport"
)

// fakeTransport records lifecycle calls and echoes requests back.
type fakeTransport struct {
	kind        transport.Kind
	connects    int
	disconnects int
	calls       []string
}

func (f *fakeTransport) Connect(context.Context) error { f.connects++; return nil }
func (f *fakeTransport) Disconnect() error             { f.disconnects++; return nil }
func (f *fakeTransport) Kind() transport.Kind          { return f.kind }
func (f *fakeTransport) SendRequest(_ context.Context, operation string, _ any) transport.Result {
	f.calls = append(f.calls, operation)
	return transport.NewResult(operation, "id-1", time.Now(), []byte(`{}`), "")
}

func TestUnifiedClientCallDelegates(t *testing.T) {
	sse := &fakeTransport{kind: transport.KindSSE}
	c := NewUnifiedClient(sse)
	require.NoError(t, c.Connect(context.Background()))

	res := c.Call(context.Background(), "get_spaces", nil)
	require.True(t, res.Success)
	require.Equal(t, []string{"get_spaces"}, sse.calls)
	require.Equal(t, transport.KindSSE, c.Active())
}

func TestUnifiedClientUseSwitches(t *testing.T) {
	sse := &fakeTransport{kind: transport.KindSSE}
	plain := &fakeTransport{kind: transport.KindHTTP}
	c := NewUnifiedClient(sse, plain)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Use(context.Background(), transport.KindHTTP))
	require.Equal(t, transport.KindHTTP, c.Active())
	require.Equal(t, 1, sse.disconnects)
	require.Equal(t, 1, plain.connects)

	// Switching to the active kind is a no-op.
	require.NoError(t, c.Use(context.Background(), transport.KindHTTP))
	require.Equal(t, 1, plain.connects)

	c.Call(context.Background(), "get_tasks", nil)
	require.Empty(t, sse.calls)
	require.Equal(t, []string{"get_tasks"}, plain.calls)
}

func TestUnifiedClientUseUnknownKind(t *testing.T) {
	c := NewUnifiedClient(&fakeTransport{kind: transport.KindSSE})
	require.ErrorContains(t, c.Use(context.Background(), transport.KindN8N), "no transport configured")
}

func TestUnifiedClientCallWithoutTransport(t *testing.T) {
	c := NewUnifiedClient()
	res := c.Call(context.Background(), "get_spaces", nil)
	require.False(t, res.Success)
	require.Contains(t, res.ErrorMessage, "no transport configured")
}

func TestUnifiedClientClose(t *testing.T) {
	sse := &fakeTransport{kind: transport.KindSSE}
	plain := &fakeTransport{kind: transport.KindHTTP}
	c := NewUnifiedClient(sse, plain)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.Equal(t, 1, sse.disconnects)
	require.Equal(t, 1, plain.disconnects)
}
