package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// timeoutMessage is the error text a pending request resolves with when
// its deadline elapses before a matching inbound frame arrives.
const timeoutMessage = "Request timeout"

// Outcome is what a pending request resolves with: remote result data or
// a human-readable failure message.
type Outcome struct {
	OK     bool
	Data   json.RawMessage
	ErrMsg string
}

// CorrelationTable maps in-flight correlation ids to their single-use
// completion handles. Each registered id is resolved exactly once, by a
// matching inbound frame, by deadline expiry, or by Drain on shutdown.
// A race between resolve and expire settles in favor of whichever runs
// first; the loser finds the entry gone and is a no-op.
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	id    string
	timer *time.Timer
	done  func(Outcome)
}

func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{entries: make(map[string]*pendingEntry)}
}

// Register adds a pending entry with a deadline of now + timeout. The id
// must not already be present; the id generation scheme makes a duplicate
// a programmer error.
func (t *CorrelationTable) Register(id string, timeout time.Duration, done func(Outcome)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return fmt.Errorf("correlation id already registered: %s", id)
	}
	e := &pendingEntry{id: id, done: done}
	e.timer = time.AfterFunc(timeout, func() { t.Expire(id) })
	t.entries[id] = e
	return nil
}

// Resolve completes the entry for id and removes it, reporting whether an
// entry was present. Absent ids belong to the caller: the frame is
// unsolicited and should be routed to generic subscribers.
func (t *CorrelationTable) Resolve(id string, out Outcome) bool {
	e := t.take(id)
	if e == nil {
		return false
	}
	e.timer.Stop()
	e.done(out)
	return true
}

// Expire fails the entry for id with a timeout, if it is still present.
func (t *CorrelationTable) Expire(id string) bool {
	e := t.take(id)
	if e == nil {
		return false
	}
	e.done(Outcome{ErrMsg: timeoutMessage})
	return true
}

// Drain fails every remaining entry with the given reason, in arbitrary
// order, cancelling their deadline timers.
func (t *CorrelationTable) Drain(reason string) {
	t.mu.Lock()
	drained := make([]*pendingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		drained = append(drained, e)
	}
	t.entries = make(map[string]*pendingEntry)
	t.mu.Unlock()

	for _, e := range drained {
		e.timer.Stop()
		e.done(Outcome{ErrMsg: reason})
	}
}

// Len reports the number of in-flight entries.
func (t *CorrelationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *CorrelationTable) take(id string) *pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	return e
}
