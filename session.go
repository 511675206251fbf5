package reader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/simp-lee/reader/book"
	"github.com/simp-lee/reader/epub"
	"github.com/simp-lee/reader/internal/loop"
	"github.com/simp-lee/reader/pdfpage"
	"github.com/simp-lee/reader/store"
)

// ErrUnsupported is the cause of the FormatError reported for files that
// are neither ePub nor PDF.
var ErrUnsupported = errors.New("reader: unsupported file type")

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the session's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPositionStore enables loading and saving reading positions.
func WithPositionStore(ps PositionStore) Option {
	return func(s *Session) { s.positions = ps }
}

// WithOpener sets how raster documents are opened. The default is
// pdfpage.FileOpener with no rasterizer.
func WithOpener(o pdfpage.Opener) Option {
	return func(s *Session) { s.opener = o }
}

// OnOpen sets a callback invoked on the dispatcher once a document opened
// by Open is displayed. err is non-nil if the document is a placeholder.
func OnOpen(f func(doc *book.Document, err error)) Option {
	return func(s *Session) { s.onOpen = f }
}

// Session is a reading session over one document at a time.
//
// All methods must be called on the dispatcher's goroutine, and the Surface
// is only called from there. Loading, rendering and saving happen on
// background goroutines that post their results back to the dispatcher.
type Session struct {
	cfg       Config
	logger    *slog.Logger
	disp      loop.Dispatcher
	surface   Surface
	positions PositionStore
	opener    pdfpage.Opener
	onOpen    func(*book.Document, error)
	saver     *saver

	doc        *book.Document
	bookID     string
	persist    bool
	tracker    *tracker
	pipeline   *pdfpage.Pipeline
	back       *ReadingPosition
	pending    float64
	cancelSave func()
	closed     bool

	// Loads run one at a time. A finished load waits in ready until
	// install takes it or a newer Open discards it, so a superseded
	// raster handle is closed before the next one is opened.
	loadMu  sync.Mutex
	openGen uint64
	ready   *loadResult
	loading chan struct{}
	loaders sync.WaitGroup
}

// New returns a session that renders into surface and schedules work on d.
func New(d loop.Dispatcher, surface Surface, opts ...Option) *Session {
	s := &Session{
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		disp:    d,
		surface: surface,
		opener:  pdfpage.FileOpener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.positions != nil {
		s.saver = newSaver(s.positions, s.logger)
	}
	return s
}

type loadResult struct {
	doc    *book.Document
	handle pdfpage.Handle
	bookID string
	saved  store.Position
	found  bool
	err    error
}

// Open closes the current document and starts loading the one at path in
// the background. The document is chosen by file extension. When loading
// finishes it is displayed at its saved position and the OnOpen callback
// runs; a newer Open supersedes an older one still loading.
func (s *Session) Open(path string) {
	if s.closed {
		return
	}
	s.closeDocument()
	gen := s.supersede()

	prev := s.loading
	done := make(chan struct{})
	s.loading = done
	s.loaders.Add(1)
	go func() {
		defer s.loaders.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if !s.current(gen) {
			return
		}
		res := s.load(path)

		s.loadMu.Lock()
		if gen != s.openGen {
			s.loadMu.Unlock()
			s.discard(&res)
			return
		}
		s.ready = &res
		s.loadMu.Unlock()
		s.disp.Post(s.install)
	}()
}

// supersede invalidates every load in flight, discards a finished one not
// yet installed and returns the new load generation.
func (s *Session) supersede() uint64 {
	s.loadMu.Lock()
	s.openGen++
	gen := s.openGen
	stale := s.ready
	s.ready = nil
	s.loadMu.Unlock()
	s.discard(stale)
	return gen
}

func (s *Session) current(gen uint64) bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return gen == s.openGen
}

func (s *Session) discard(res *loadResult) {
	if res == nil {
		return
	}
	if err := res.doc.Close(); err != nil {
		s.logger.Warn("close superseded document", "path", res.doc.Path, "error", err)
	}
}

func (s *Session) load(path string) loadResult {
	res := loadResult{bookID: path}
	if abs, err := filepath.Abs(path); err == nil {
		res.bookID = abs
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		res.doc, res.err = epub.Load(path,
			epub.WithLogger(s.logger),
			epub.WithWorkers(s.cfg.Workers),
			epub.WithExtractDir(s.cfg.ExtractDir))
	case ".pdf":
		res.doc, res.handle, res.err = pdfpage.Load(path, s.opener, s.logger)
	default:
		res.err = &book.FormatError{Path: path, Err: ErrUnsupported}
		res.doc = book.NewPlaceholderDocument(path, res.err)
	}

	if res.err == nil && s.positions != nil {
		pos, ok, err := s.positions.LoadPosition(context.Background(), res.bookID)
		if err != nil {
			s.logger.Warn("load reading position failed", "book", res.bookID, "error", err)
		}
		res.saved, res.found = pos, ok
	}
	return res
}

func (s *Session) install() {
	s.loadMu.Lock()
	res := s.ready
	s.ready = nil
	s.loadMu.Unlock()
	if res == nil {
		return
	}
	if s.closed {
		s.discard(res)
		return
	}

	doc := res.doc
	s.doc = doc
	s.bookID = res.bookID
	s.persist = res.err == nil

	policy := s.cfg.StructuredRestore
	if doc.Kind == book.KindRaster {
		policy = s.cfg.RasterRestore
		s.pipeline = pdfpage.NewPipeline(s.disp, res.handle, doc.TotalUnits(),
			pdfpage.WithCapacity(s.cfg.PageCacheSize),
			pdfpage.WithDPI(s.cfg.RenderDPI),
			pdfpage.WithPipelineLogger(s.logger),
			pdfpage.OnDisplay(s.showPage),
			pdfpage.OnError(func(_ int, err error) { s.surface.ShowError(err) }))
	}
	s.tracker = newTracker(s.disp, s.surface, policy, doc.TotalUnits(), s.logger)

	start := 0
	if res.found {
		start = min(max(res.saved.Unit, 0), doc.TotalUnits()-1)
		s.pending = res.saved.Fraction
	}
	s.logger.Info("document opened",
		"path", doc.Path, "kind", doc.Kind, "units", doc.TotalUnits(), "unit", start)
	s.show(start)

	if s.onOpen != nil {
		s.onOpen(doc, res.err)
	}
}

// Document returns the open document, or nil.
func (s *Session) Document() *book.Document { return s.doc }

// Position returns the current reading position.
func (s *Session) Position() ReadingPosition {
	if s.tracker == nil {
		return ReadingPosition{}
	}
	return s.tracker.position()
}

// Progress returns the percentage of the document read.
func (s *Session) Progress() float64 {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.progress()
}

// GoTo shows unit as a manual navigation: the back history is cleared and
// the new position saved. Table of contents entries and page jumps use it.
func (s *Session) GoTo(unit int) error {
	if err := s.check(unit); err != nil {
		return err
	}
	s.back = nil
	s.show(unit)
	s.save(s.tracker.position())
	return nil
}

// Next moves to the following unit. It reports whether there was one.
func (s *Session) Next() bool {
	if s.doc == nil {
		return false
	}
	next := s.tracker.position().Unit + 1
	if next >= s.doc.TotalUnits() {
		return false
	}
	return s.GoTo(next) == nil
}

// Prev moves to the preceding unit. It reports whether there was one.
func (s *Session) Prev() bool {
	if s.doc == nil {
		return false
	}
	prev := s.tracker.position().Unit - 1
	if prev < 0 {
		return false
	}
	return s.GoTo(prev) == nil
}

// GoToBookmark shows the unit a bookmark points at. Bookmarks of other
// books are rejected.
func (s *Session) GoToBookmark(b store.Bookmark) error {
	if s.doc != nil && b.BookID != s.bookID {
		return fmt.Errorf("reader: bookmark %s belongs to %s: %w", b.ID, b.BookID, book.ErrNavigation)
	}
	return s.GoTo(b.Unit)
}

// OnScroll records a scroll fraction reported by the surface and schedules
// a progress save once scrolling settles.
func (s *Session) OnScroll(fraction float64) {
	if s.doc == nil {
		return
	}
	s.tracker.observe(fraction)

	if s.cancelSave != nil {
		s.cancelSave()
	}
	s.cancelSave = s.disp.AfterFunc(s.debounce(), func() {
		s.cancelSave = nil
		if s.tracker.restoring() {
			return
		}
		s.SaveProgress()
	})
}

// SaveProgress reads the scroll fraction from the surface and saves the
// current position. It does nothing while a scroll restoration is running.
func (s *Session) SaveProgress() {
	if s.doc == nil || s.tracker.restoring() {
		return
	}
	s.tracker.observe(s.surface.ScrollFraction())
	s.save(s.tracker.position())
}

// Leave saves the current position and waits for it to be written. It is
// meant for when the reader view is dismissed.
func (s *Session) Leave() {
	s.SaveProgress()
	if s.saver != nil {
		s.saver.flush()
	}
}

// Close saves the position, closes the document and stops background work.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.closeDocument()
	s.closed = true
	s.supersede()
	s.loaders.Wait()
	if s.saver != nil {
		s.saver.close()
	}
	return err
}

func (s *Session) check(unit int) error {
	if s.doc == nil {
		return fmt.Errorf("reader: no document: %w", book.ErrClosed)
	}
	if unit < 0 || unit >= s.doc.TotalUnits() {
		return fmt.Errorf("reader: unit %d out of range [0, %d): %w", unit, s.doc.TotalUnits(), book.ErrNavigation)
	}
	return nil
}

// show is the display path shared by every navigation. The saved fraction
// of a freshly opened document is restored by the first display only.
func (s *Session) show(unit int) {
	restore := s.pending
	s.pending = 0
	s.showAt(unit, restore)
}

func (s *Session) showAt(unit int, restore float64) {
	s.tracker.begin(unit, restore)
	if s.doc.Kind == book.KindRaster {
		if err := s.pipeline.DisplayPage(unit); err != nil {
			s.surface.ShowError(err)
		}
		return
	}
	u, _ := s.doc.Unit(unit)
	s.surface.ShowUnit(u)
}

func (s *Session) showPage(page int, img image.Image) {
	s.surface.ShowPage(page, pdfpage.FitViewport(img, s.surface.ViewportWidth()))
}

func (s *Session) save(pos ReadingPosition) {
	if s.saver == nil || !s.persist {
		return
	}
	s.saver.save(saveRequest{
		bookID:  s.bookID,
		pos:     pos,
		percent: Progress(pos.Unit, pos.Fraction, s.doc.TotalUnits()),
	})
}

// closeDocument saves the position of the current document and releases it.
func (s *Session) closeDocument() error {
	if s.doc == nil {
		return nil
	}
	if s.cancelSave != nil {
		s.cancelSave()
		s.cancelSave = nil
	}
	s.SaveProgress()
	s.tracker.stop()
	if s.pipeline != nil {
		s.pipeline.Close()
		s.pipeline = nil
	}
	err := s.doc.Close()
	if err != nil {
		s.logger.Warn("close document", "path", s.doc.Path, "error", err)
	}
	s.doc, s.tracker, s.back = nil, nil, nil
	s.pending = 0
	return err
}

func (s *Session) debounce() time.Duration {
	if s.doc.Kind == book.KindRaster {
		return s.cfg.RasterDebounce
	}
	return s.cfg.StructuredDebounce
}
