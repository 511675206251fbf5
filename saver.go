package reader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/simp-lee/reader/store"
)

// PositionStore persists reading positions. *store.Store implements it.
type PositionStore interface {
	LoadPosition(ctx context.Context, bookID string) (store.Position, bool, error)
	SavePosition(ctx context.Context, bookID string, unit int, fraction, percent float64) error
}

// saveTimeout bounds a single background write.
const saveTimeout = 5 * time.Second

type saveRequest struct {
	bookID  string
	pos     ReadingPosition
	percent float64
}

// saver writes positions on its own goroutine. Requests queued while a
// write is running are coalesced so only the most recent one is written.
// Failures are logged and left for the next save to supersede.
type saver struct {
	store  PositionStore
	logger *slog.Logger

	mu       sync.Mutex
	pending  *saveRequest
	flushers []chan struct{}
	closed   bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func newSaver(ps PositionStore, logger *slog.Logger) *saver {
	s := &saver{
		store:  ps,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run()
	return s
}

// save queues req, replacing any request not yet written.
func (s *saver) save(req saveRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = &req
	s.mu.Unlock()
	s.signal()
}

// flush blocks until every queued request has been written.
func (s *saver) flush() {
	ch := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.flushers = append(s.flushers, ch)
	s.mu.Unlock()
	s.signal()

	select {
	case <-ch:
	case <-s.exited:
	}
}

// close writes any queued request and stops the goroutine.
func (s *saver) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	<-s.exited
}

func (s *saver) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *saver) drain() {
	for {
		s.mu.Lock()
		req := s.pending
		s.pending = nil
		var flushers []chan struct{}
		if req == nil {
			flushers, s.flushers = s.flushers, nil
		}
		s.mu.Unlock()

		if req == nil {
			for _, ch := range flushers {
				close(ch)
			}
			return
		}
		s.write(req)
	}
}

func (s *saver) write(req *saveRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err := s.store.SavePosition(ctx, req.bookID, req.pos.Unit, req.pos.Fraction, req.percent)
	if err != nil {
		s.logger.Warn("save reading position failed",
			"book", req.bookID, "unit", req.pos.Unit, "error", err)
	}
}
