// Package loop provides the foreground event loop that owns all reading
// session state. Background work never touches that state directly; it posts
// a function to the loop instead.
package loop

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher runs functions one at a time on a single foreground goroutine.
type Dispatcher interface {
	// Post queues f to run on the foreground goroutine. It never blocks and
	// may be called from any goroutine.
	Post(f func())

	// AfterFunc runs f on the foreground goroutine once d has elapsed. The
	// returned cancel function prevents f from running if it has not started.
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// Loop is a Dispatcher backed by a dedicated goroutine and the wall clock.
type Loop struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// New starts a loop. Close stops it.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post implements Dispatcher. Functions posted after Close are dropped.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc implements Dispatcher.
func (l *Loop) AfterFunc(d time.Duration, f func()) (cancel func()) {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				f()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Do runs f on the loop and waits for it to return. It must not be called
// from the loop goroutine. Do returns false if the loop is closed before f
// runs.
func (l *Loop) Do(f func()) bool {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		f()
	})
	select {
	case <-ran:
		return true
	case <-l.exited:
		return false
	}
}

// Close stops the loop after the function currently running returns.
// Queued functions are dropped. Close is idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
	<-l.exited
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			f, ok := l.next()
			if !ok {
				break
			}
			l.call(f)
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return f, true
}

// call runs f, turning a panic into a logged error so that one faulty
// callback does not take the session down.
func (l *Loop) call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "panic", fmt.Sprint(r))
		}
	}()
	f()
}
