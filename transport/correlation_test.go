package transport

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCorrelationResolve(t *testing.T) {
	table := NewCorrelationTable()
	done := make(chan Outcome, 1)

	err := table.Register("req_1", time.Minute, func(out Outcome) { done <- out })
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	ok := table.Resolve("req_1", Outcome{OK: true, Data: json.RawMessage(`{"spaces":[]}`)})
	require.True(t, ok)

	out := <-done
	require.True(t, out.OK)
	require.JSONEq(t, `{"spaces":[]}`, string(out.Data))
	require.Equal(t, 0, table.Len())
}

func TestCorrelationDuplicateID(t *testing.T) {
	table := NewCorrelationTable()
	require.NoError(t, table.Register("req_1", time.Minute, func(Outcome) {}))
	require.Error(t, table.Register("req_1", time.Minute, func(Outcome) {}))
}

func TestCorrelationExpiry(t *testing.T) {
	table := NewCorrelationTable()
	done := make(chan Outcome, 1)

	require.NoError(t, table.Register("req_1", 20*time.Millisecond, func(out Outcome) { done <- out }))

	select {
	case out := <-done:
		require.False(t, out.OK)
		require.Equal(t, "Request timeout", out.ErrMsg)
	case <-time.After(time.Second):
		t.Fatal("deadline timer never fired")
	}
	require.Equal(t, 0, table.Len())

	// A frame arriving after expiry finds no entry.
	require.False(t, table.Resolve("req_1", Outcome{OK: true}))
}

func TestCorrelationResolveBeatsExpiry(t *testing.T) {
	table := NewCorrelationTable()
	var mu sync.Mutex
	var outcomes []Outcome

	require.NoError(t, table.Register("req_1", 30*time.Millisecond, func(out Outcome) {
		mu.Lock()
		outcomes = append(outcomes, out)
		mu.Unlock()
	}))
	require.True(t, table.Resolve("req_1", Outcome{OK: true}))

	// Wait past the deadline: the expiry must find the entry already gone.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].OK)
}

func TestCorrelationDrain(t *testing.T) {
	table := NewCorrelationTable()
	done := make(chan Outcome, 3)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, table.Register(id, time.Minute, func(out Outcome) { done <- out }))
	}

	table.Drain("transport closed")
	require.Equal(t, 0, table.Len())
	for i := 0; i < 3; i++ {
		out := <-done
		require.False(t, out.OK)
		require.Equal(t, "transport closed", out.ErrMsg)
	}
}

func TestIDGeneratorUnique(t *testing.T) {
	g := newIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.next()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
