package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Dispatcher driven explicitly by its caller with a virtual
// clock. Tests use it to make scheduling deterministic: posted functions run
// only inside RunPending or Advance, on the calling goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	queue  []func()
	timers []*manualTimer
	seq    int
	posted chan struct{}
}

type manualTimer struct {
	due       time.Duration
	seq       int
	f         func()
	cancelled bool
}

// NewManual returns a Manual dispatcher at virtual time zero.
func NewManual() *Manual {
	return &Manual{posted: make(chan struct{}, 1)}
}

// Post implements Dispatcher. It is safe to call from any goroutine.
func (m *Manual) Post(f func()) {
	m.mu.Lock()
	m.queue = append(m.queue, f)
	m.mu.Unlock()
	select {
	case m.posted <- struct{}{}:
	default:
	}
}

// AfterFunc implements Dispatcher using the virtual clock.
func (m *Manual) AfterFunc(d time.Duration, f func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Now returns the virtual time elapsed since NewManual.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// RunPending runs queued functions, including ones they post, until the
// queue is empty. It returns how many ran.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		f := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		f()
		n++
	}
}

// Advance moves the virtual clock forward by d, firing due timers in order.
// Functions posted along the way run before the next timer fires.
func (m *Manual) Advance(d time.Duration) {
	m.RunPending()
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.popDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			break
		}
		m.now = t.due
		m.mu.Unlock()

		t.f()
		m.RunPending()
	}
	m.RunPending()
}

// popDue removes and returns the earliest live timer due at or before
// target. Callers hold m.mu.
func (m *Manual) popDue(target time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(m.timers) == 0 {
		return nil
	}
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].due != m.timers[j].due {
			return m.timers[i].due < m.timers[j].due
		}
		return m.timers[i].seq < m.timers[j].seq
	})
	t := m.timers[0]
	if t.due > target {
		return nil
	}
	m.timers = m.timers[1:]
	return t
}

// PendingTimers returns the number of timers that have neither fired nor
// been cancelled.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// WaitPosted blocks until a function has been posted since the last call,
// or until timeout. Tests use it to wait for background goroutines.
func (m *Manual) WaitPosted(timeout time.Duration) bool {
	m.mu.Lock()
	queued := len(m.queue) > 0
	m.mu.Unlock()
	if queued {
		return true
	}
	select {
	case <-m.posted:
		return true
	case <-time.After(timeout):
		return false
	}
}
