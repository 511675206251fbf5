package reader

import (
	"math"
	"time"
)

// RestorePolicy controls how a scroll position is re-applied to content that
// lays itself out asynchronously.
type RestorePolicy struct {
	// MaxAttempts bounds the number of readiness probes.
	MaxAttempts int

	// Backoff returns the delay before the zero-based attempt n. It must be
	// non-decreasing in n.
	Backoff func(n int) time.Duration

	// VerifyDelay is how long to wait after scrolling before reading the
	// achieved fraction back.
	VerifyDelay time.Duration

	// Tolerance is the largest accepted difference between the target and
	// achieved fraction.
	Tolerance float64

	// Ready reports whether the surface's content has been laid out.
	Ready func(Surface) bool
}

// StructuredRestorePolicy returns the policy for reflowable content: five
// attempts, 200ms apart and growing, ready once the content is taller than
// 100 units.
func StructuredRestorePolicy() RestorePolicy {
	return RestorePolicy{
		MaxAttempts: 5,
		Backoff: func(n int) time.Duration {
			return time.Duration(n+1) * 200 * time.Millisecond
		},
		VerifyDelay: 100 * time.Millisecond,
		Tolerance:   0.05,
		Ready:       ExtentReady(100),
	}
}

// RasterRestorePolicy returns the policy for paginated content, whose page
// geometry settles more slowly: eight attempts starting at 50ms.
func RasterRestorePolicy() RestorePolicy {
	return RestorePolicy{
		MaxAttempts: 8,
		Backoff: func(n int) time.Duration {
			if n < 4 {
				return time.Duration(n+1) * 50 * time.Millisecond
			}
			return time.Duration(200+(n-3)*100) * time.Millisecond
		},
		VerifyDelay: 100 * time.Millisecond,
		Tolerance:   0.05,
		Ready:       ViewportReady,
	}
}

// ExtentReady returns a probe that is ready once the surface's content
// extent exceeds threshold.
func ExtentReady(threshold float64) func(Surface) bool {
	return func(s Surface) bool {
		return s.ContentExtent() > threshold
	}
}

// ViewportReady is ready once the viewport has a height and the content is
// taller than it.
func ViewportReady(s Surface) bool {
	viewport, content := s.ViewportHeights()
	return viewport > 0 && content > viewport
}

func (p RestorePolicy) delay(n int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(n)
}

// restoreSession is one in-flight restoration: either a scroll fraction or
// an anchor to bring into view.
type restoreSession struct {
	target     float64
	anchor     string
	attempt    int
	generation uint64
}

func (t *tracker) start(rs *restoreSession) {
	t.active = rs
	t.schedule(rs, t.policy.delay(0))
}

func (t *tracker) schedule(rs *restoreSession, d time.Duration) {
	t.cancel = t.disp.AfterFunc(d, func() { t.attempt(rs) })
}

// current reports whether rs still belongs to the latest display.
func (t *tracker) current(rs *restoreSession) bool {
	return rs.generation == t.generation && t.active == rs
}

func (t *tracker) attempt(rs *restoreSession) {
	if !t.current(rs) {
		return
	}
	if t.policy.Ready != nil && !t.policy.Ready(t.surface) {
		t.retry(rs, "content not ready")
		return
	}

	if rs.anchor != "" {
		if !t.surface.ScrollToAnchor(rs.anchor) {
			t.retry(rs, "anchor not found")
			return
		}
		t.pos.Fraction = clamp(t.surface.ScrollFraction(), 0, 1)
		t.finish(rs)
		return
	}

	t.surface.SetScrollFraction(rs.target)
	t.cancel = t.disp.AfterFunc(t.policy.VerifyDelay, func() { t.verify(rs) })
}

func (t *tracker) verify(rs *restoreSession) {
	if !t.current(rs) {
		return
	}
	got := t.surface.ScrollFraction()
	if math.Abs(got-rs.target) > t.policy.Tolerance {
		t.retry(rs, "scroll position not applied")
		return
	}
	t.pos.Fraction = clamp(got, 0, 1)
	t.finish(rs)
}

func (t *tracker) retry(rs *restoreSession, reason string) {
	rs.attempt++
	if rs.attempt >= t.policy.MaxAttempts {
		t.logger.Warn("scroll restore abandoned",
			"unit", t.pos.Unit, "generation", rs.generation,
			"attempt", rs.attempt, "reason", reason)
		t.active, t.cancel = nil, nil
		return
	}
	t.logger.Debug("scroll restore retry",
		"unit", t.pos.Unit, "generation", rs.generation,
		"attempt", rs.attempt, "reason", reason)
	t.schedule(rs, t.policy.delay(rs.attempt))
}

func (t *tracker) finish(rs *restoreSession) {
	t.logger.Debug("scroll restored",
		"unit", t.pos.Unit, "generation", rs.generation,
		"attempt", rs.attempt, "fraction", t.pos.Fraction)
	t.active, t.cancel = nil, nil
}
