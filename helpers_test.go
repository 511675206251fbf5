package reader

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simp-lee/reader/book"
	"github.com/simp-lee/reader/internal/loop"
	"github.com/simp-lee/reader/pdfpage"
	"github.com/simp-lee/reader/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTestEPub writes an ePub with units text/u0.xhtml ... and returns its
// path. Every unit has elements with ids "top" and "note". Without a package
// descriptor the archive holds only unit files.
func writeTestEPub(t *testing.T, units int, descriptor bool) string {
	t.Helper()
	files := map[string]string{}
	var manifest, spine strings.Builder
	for i := 0; i < units; i++ {
		href := fmt.Sprintf("text/u%d.xhtml", i)
		fmt.Fprintf(&manifest, `<item id="u%d" href="%s" media-type="application/xhtml+xml"/>`, i, href)
		fmt.Fprintf(&spine, `<itemref idref="u%d"/>`, i)
		files["OEBPS/"+href] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>Unit %d</title></head>
<body><h1 id="top">Unit %d</h1><p id="note">Note of unit %d.</p></body></html>`, i, i, i)
	}
	if descriptor {
		files["META-INF/container.xml"] = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`
		files["OEBPS/content.opf"] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>%s</manifest>
  <spine>%s</spine>
</package>`, manifest.String(), spine.String())
	}

	p := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "application/epub+zip")
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

// fakeSurface records what a session shows. By default content is laid out
// immediately and scrolling is applied exactly.
type fakeSurface struct {
	units    []int
	pages    []int
	pageImgs []image.Image
	errs     []error

	fraction float64
	sets     []float64
	stuck    bool // ignore SetScrollFraction

	anchors []string
	missing map[string]bool

	extent   float64
	viewport float64
	content  float64
	width    int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{extent: 1000, viewport: 600, content: 1200, width: 440}
}

func (f *fakeSurface) ShowUnit(u book.Unit) {
	f.units = append(f.units, u.Index)
	f.fraction = 0
}

func (f *fakeSurface) ShowPage(page int, img image.Image) {
	f.pages = append(f.pages, page)
	f.pageImgs = append(f.pageImgs, img)
	f.fraction = 0
}

func (f *fakeSurface) ShowError(err error) { f.errs = append(f.errs, err) }

func (f *fakeSurface) ScrollFraction() float64 { return f.fraction }

func (f *fakeSurface) SetScrollFraction(v float64) {
	f.sets = append(f.sets, v)
	if !f.stuck {
		f.fraction = v
	}
}

func (f *fakeSurface) ScrollToAnchor(id string) bool {
	f.anchors = append(f.anchors, id)
	return !f.missing[id]
}

func (f *fakeSurface) ContentExtent() float64 { return f.extent }

func (f *fakeSurface) ViewportHeights() (float64, float64) { return f.viewport, f.content }

func (f *fakeSurface) ViewportWidth() int { return f.width }

func (f *fakeSurface) lastUnit() int {
	if len(f.units) == 0 {
		return -1
	}
	return f.units[len(f.units)-1]
}

// fakeStore is an in-memory PositionStore.
type fakeStore struct {
	mu    sync.Mutex
	saved map[string]store.Position
	saves []store.Position
	gate  chan struct{} // if non-nil, SavePosition waits for it
	fail  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]store.Position)}
}

func (s *fakeStore) LoadPosition(_ context.Context, bookID string) (store.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.saved[bookID]
	return p, ok, nil
}

func (s *fakeStore) SavePosition(_ context.Context, bookID string, unit int, fraction, percent float64) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	p := store.Position{BookID: bookID, Unit: unit, Fraction: fraction, Percent: percent}
	s.saved[bookID] = p
	s.saves = append(s.saves, p)
	return nil
}

func (s *fakeStore) history() []store.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Position(nil), s.saves...)
}

func (s *fakeStore) set(path string, unit int, fraction float64) {
	abs, _ := filepath.Abs(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[abs] = store.Position{BookID: abs, Unit: unit, Fraction: fraction}
}

// fakeHandle is a raster document whose pages render as 100x200 bitmaps.
type fakeHandle struct {
	pages  int
	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) PageCount() int { return h.pages }

func (h *fakeHandle) RenderPage(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 100, 200)), nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeOpener hands out fakeHandles and records whether two were ever open
// at the same time.
type fakeOpener struct {
	pages      int
	mu         sync.Mutex
	handles    []*fakeHandle
	concurrent bool
}

func (o *fakeOpener) Open(string) (pdfpage.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range o.handles {
		if !h.isClosed() {
			o.concurrent = true
		}
	}
	h := &fakeHandle{pages: o.pages}
	o.handles = append(o.handles, h)
	return h, nil
}

// testSession bundles a session with its manual dispatcher and fakes.
type testSession struct {
	*Session
	m       *loop.Manual
	surface *fakeSurface
	store   *fakeStore
	opened  []error
}

func newTestSession(t *testing.T, opts ...Option) *testSession {
	t.Helper()
	ts := &testSession{
		m:       loop.NewManual(),
		surface: newFakeSurface(),
		store:   newFakeStore(),
	}
	cfg := DefaultConfig()
	cfg.ExtractDir = t.TempDir()
	opts = append([]Option{
		WithConfig(cfg),
		WithLogger(quietLogger()),
		WithPositionStore(ts.store),
		OnOpen(func(_ *book.Document, err error) { ts.opened = append(ts.opened, err) }),
	}, opts...)
	ts.Session = New(ts.m, ts.surface, opts...)
	t.Cleanup(func() { ts.Close() })
	return ts
}

// open loads path and runs the dispatcher until the document is installed.
func (ts *testSession) open(t *testing.T, path string) {
	t.Helper()
	before := len(ts.opened)
	ts.Open(path)
	ts.loaders.Wait()
	ts.m.RunPending()
	if len(ts.opened) != before+1 {
		t.Fatalf("Open(%s) did not install a document", path)
	}
}

// waitFor runs posted work until cond holds or a second passes.
func (ts *testSession) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		ts.m.WaitPosted(10 * time.Millisecond)
		ts.m.RunPending()
	}
}
