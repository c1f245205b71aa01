package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	require.Equal(t, 1*time.Second, backoffDelay(base, max, 0))
	require.Equal(t, 2*time.Second, backoffDelay(base, max, 1))
	require.Equal(t, 4*time.Second, backoffDelay(base, max, 2))
	require.Equal(t, 8*time.Second, backoffDelay(base, max, 3))
	require.Equal(t, 16*time.Second, backoffDelay(base, max, 4))
	require.Equal(t, 30*time.Second, backoffDelay(base, max, 5))
	require.Equal(t, 30*time.Second, backoffDelay(base, max, 20))
}

// stubSchedule records scheduled delays without waiting them out.
type stubSchedule struct {
	delays []time.Duration
	fns    []func()
}

func (s *stubSchedule) schedule(delay time.Duration, fn func()) func() {
	s.delays = append(s.delays, delay)
	s.fns = append(s.fns, fn)
	return func() {}
}

func TestSupervisorBackoffSequence(t *testing.T) {
	stub := &stubSchedule{}
	sup := newReconnectSupervisor(time.Second, 30*time.Second, 5)
	sup.schedule = stub.schedule

	for i := 0; i < 5; i++ {
		require.True(t, sup.next(func() {}), "attempt %d should schedule", i+1)
	}
	require.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, stub.delays)

	// The ceiling is reached: no sixth attempt.
	require.False(t, sup.next(func() {}))
	require.Len(t, stub.delays, 5)
	require.Equal(t, 5, sup.attempts())
}

func TestSupervisorResetAfterSuccess(t *testing.T) {
	stub := &stubSchedule{}
	sup := newReconnectSupervisor(time.Second, 30*time.Second, 5)
	sup.schedule = stub.schedule

	require.True(t, sup.next(func() {}))
	require.True(t, sup.next(func() {}))
	sup.reset()
	require.Equal(t, 0, sup.attempts())

	require.True(t, sup.next(func() {}))
	require.Equal(t, time.Second, stub.delays[len(stub.delays)-1])
}

func TestSupervisorStop(t *testing.T) {
	stub := &stubSchedule{}
	sup := newReconnectSupervisor(time.Second, 30*time.Second, 5)
	sup.schedule = stub.schedule

	require.True(t, sup.next(func() {}))
	sup.stop()
	require.False(t, sup.next(func() {}))

	sup.reset()
	require.True(t, sup.next(func() {}))
}
