package pdfpage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
)

// PointsPerInch is the PDF user-space unit density.
const PointsPerInch = 72.0

// Default page size (US Letter, points) for pages without a usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// ErrNoRasterizer is returned by File.RenderPage when no Rasterizer was
// supplied to the Opener.
var ErrNoRasterizer = errors.New("pdfpage: no rasterizer configured")

// Renderer renders pages of an open raster document. Implementations must
// be safe for concurrent use.
type Renderer interface {
	// RenderPage rasterizes the zero-based page at dpi dots per inch.
	RenderPage(ctx context.Context, page int, dpi float64) (image.Image, error)
}

// Handle is an open raster document.
type Handle interface {
	Renderer
	io.Closer

	// PageCount returns the number of pages.
	PageCount() int
}

// Opener opens raster documents.
type Opener interface {
	Open(path string) (Handle, error)
}

// Rasterizer draws a single parsed page into a bitmap of the given pixel
// size. It is the pluggable drawing backend of File.
type Rasterizer interface {
	Rasterize(ctx context.Context, page pdf.Page, size image.Point) (image.Image, error)
}

// FileOpener opens PDF files with github.com/ledongthuc/pdf.
type FileOpener struct {
	// Rasterizer draws page content. If nil, RenderPage fails with
	// ErrNoRasterizer but page counts and sizes are still available.
	Rasterizer Rasterizer
}

// Open implements Opener.
func (o FileOpener) Open(path string) (Handle, error) {
	return OpenFile(path, o.Rasterizer)
}

// File is a Handle backed by an open PDF file.
type File struct {
	f          *os.File
	rasterizer Rasterizer

	mu     sync.Mutex // guards r, which is not safe for concurrent use
	r      *pdf.Reader
	pages  int
	closed bool
}

// OpenFile opens the PDF at path.
func OpenFile(path string, rz Rasterizer) (h *File, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfpage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pdfpage: stat %s: %w", path, err)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			f.Close()
			h, err = nil, fmt.Errorf("pdfpage: malformed document %s: %v", path, r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pdfpage: read %s: %w", path, err)
	}
	return &File{f: f, rasterizer: rz, r: r, pages: r.NumPage()}, nil
}

// PageCount implements Handle.
func (h *File) PageCount() int { return h.pages }

// RenderPage implements Renderer. The bitmap is sized from the page's
// MediaBox scaled to dpi. Rasterization runs under the handle's lock since
// the page reads from the shared reader, so renders of one File are
// serialized.
func (h *File) RenderPage(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.rasterizer == nil {
		return nil, ErrNoRasterizer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.page(page)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, ht := mediaBoxSize(p)
	return h.rasterizer.Rasterize(ctx, p, PixelSize(w, ht, dpi))
}

// Close releases the underlying file. It is safe to call more than once.
func (h *File) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.r = nil
	return h.f.Close()
}

// page returns the zero-based page. Callers hold h.mu.
func (h *File) page(i int) (pdf.Page, error) {
	if h.closed {
		return pdf.Page{}, fmt.Errorf("pdfpage: page %d: %w", i+1, os.ErrClosed)
	}
	if i < 0 || i >= h.pages {
		return pdf.Page{}, fmt.Errorf("pdfpage: page %d out of range [1, %d]", i+1, h.pages)
	}
	p := h.r.Page(i + 1)
	if p.V.IsNull() {
		return pdf.Page{}, fmt.Errorf("pdfpage: page %d missing from page tree", i+1)
	}
	return p, nil
}

// mediaBoxSize reads the page's MediaBox, walking up the page tree for an
// inherited value.
func mediaBoxSize(p pdf.Page) (width, height float64) {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() != pdf.Array || box.Len() != 4 {
			continue
		}
		w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
		ht := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
		if w > 0 && ht > 0 {
			return w, ht
		}
	}
	return defaultPageWidth, defaultPageHeight
}

// PixelSize converts a page size in points to a bitmap size at dpi.
func PixelSize(width, height, dpi float64) image.Point {
	scale := dpi / PointsPerInch
	return image.Pt(
		max(1, int(math.Round(width*scale))),
		max(1, int(math.Round(height*scale))),
	)
}
