package transport

import (
	"log"
	"sync"
	"time"
)

// backoffDelay computes the reconnect delay for a zero-based attempt
// count: min(base * 2^attempt, max). No jitter; many instances failing
// together will reconnect in lockstep, which matches the behavior callers
// and tests observe today.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// scheduleFunc runs fn after the delay and returns a cancel function.
// Injected so tests can observe scheduled delays without waiting.
type scheduleFunc func(delay time.Duration, fn func()) (cancel func())

func timerSchedule(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// reconnectSupervisor schedules stream re-establishment with bounded
// exponential backoff. Attempts count consecutively since the last
// successful connection; once the ceiling is reached no further attempt
// is scheduled and the terminal condition is logged, not thrown, since
// reconnection runs outside any caller's call stack.
type reconnectSupervisor struct {
	base       time.Duration
	max        time.Duration
	maxRetries int
	schedule   scheduleFunc

	mu      sync.Mutex
	attempt int
	cancel  func()
	stopped bool
}

func newReconnectSupervisor(base, max time.Duration, maxRetries int) *reconnectSupervisor {
	return &reconnectSupervisor{
		base:       base,
		max:        max,
		maxRetries: maxRetries,
		schedule:   timerSchedule,
	}
}

// next schedules fn after the backoff delay for the current attempt and
// increments the attempt counter. It returns false without scheduling
// once the retry ceiling is reached.
func (s *reconnectSupervisor) next(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.attempt >= s.maxRetries {
		log.Printf("reconnect: max reconnection attempts reached (%d)", s.maxRetries)
		return false
	}
	delay := backoffDelay(s.base, s.max, s.attempt)
	s.attempt++
	log.Printf("reconnect: attempt %d in %s", s.attempt, delay)
	s.cancel = s.schedule(delay, fn)
	return true
}

// reset clears the attempt counter after a successful connection.
func (s *reconnectSupervisor) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = 0
	s.stopped = false
}

// stop cancels any scheduled attempt and blocks future scheduling until
// the next reset.
func (s *reconnectSupervisor) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *reconnectSupervisor) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}
