package reader

import (
	"log/slog"

	"github.com/simp-lee/reader/internal/loop"
)

// ReadingPosition is a location inside a document: a unit and the scroll
// fraction within it.
type ReadingPosition struct {
	Unit     int
	Fraction float64
}

// Progress returns the percentage of a document of total units read at
// unit and fraction, clamped to [0, 100].
func Progress(unit int, fraction float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := (float64(unit) + clamp(fraction, 0, 1)) / float64(total) * 100
	return clamp(p, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// tracker owns the reading position of one open document and the scroll
// restoration in flight for it, if any. It must only be used from the
// dispatcher goroutine.
type tracker struct {
	disp    loop.Dispatcher
	surface Surface
	policy  RestorePolicy
	logger  *slog.Logger

	total      int
	pos        ReadingPosition
	generation uint64

	active *restoreSession
	cancel func()
}

func newTracker(d loop.Dispatcher, s Surface, policy RestorePolicy, total int, logger *slog.Logger) *tracker {
	return &tracker{
		disp:    d,
		surface: s,
		policy:  policy,
		logger:  logger,
		total:   total,
	}
}

// begin starts displaying unit. It invalidates every callback scheduled for
// the previous display and, if restore is positive, starts restoring that
// scroll fraction once the content is ready.
func (t *tracker) begin(unit int, restore float64) uint64 {
	t.generation++
	t.stop()
	t.pos = ReadingPosition{Unit: unit}
	if restore > 0 {
		t.start(&restoreSession{target: clamp(restore, 0, 1), generation: t.generation})
	}
	return t.generation
}

// scrollToAnchor scrolls to the element with id once the current unit's
// content is ready. It replaces any restoration in flight.
func (t *tracker) scrollToAnchor(id string) {
	t.stop()
	t.start(&restoreSession{anchor: id, generation: t.generation})
}

// observe records a scroll fraction reported by the surface.
func (t *tracker) observe(fraction float64) {
	t.pos.Fraction = clamp(fraction, 0, 1)
}

// position returns the current reading position.
func (t *tracker) position() ReadingPosition { return t.pos }

// progress returns the current progress percentage.
func (t *tracker) progress() float64 {
	return Progress(t.pos.Unit, t.pos.Fraction, t.total)
}

// restoring reports whether a restoration is in flight.
func (t *tracker) restoring() bool { return t.active != nil }

// stop cancels the restoration in flight without touching the generation.
func (t *tracker) stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.active = nil
}
