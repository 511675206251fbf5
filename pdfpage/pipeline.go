package pdfpage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/simp-lee/reader/book"
	"github.com/simp-lee/reader/internal/loop"
)

// DefaultDPI is the resolution pages are rendered at for display.
const DefaultDPI = 192

// DisplayFunc receives a page bitmap that should be shown.
type DisplayFunc func(page int, img image.Image)

// ErrorFunc receives a page that could not be rendered for display. err is
// a *book.RenderError.
type ErrorFunc func(page int, err error)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCapacity sets the page cache capacity.
func WithCapacity(n int) PipelineOption {
	return func(p *Pipeline) { p.cache = NewCache(n) }
}

// WithDPI sets the render resolution.
func WithDPI(dpi float64) PipelineOption {
	return func(p *Pipeline) {
		if dpi > 0 {
			p.dpi = dpi
		}
	}
}

// WithPipelineLogger sets the pipeline's logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnDisplay sets the callback that shows a page.
func OnDisplay(f DisplayFunc) PipelineOption {
	return func(p *Pipeline) { p.display = f }
}

// OnError sets the callback that reports a failed display render.
func OnError(f ErrorFunc) PipelineOption {
	return func(p *Pipeline) { p.fail = f }
}

// Pipeline serves page bitmaps for display from a Cache, rendering misses
// and preloading the next page in the background.
//
// Every method except RenderPage must be called on the dispatcher's
// goroutine. Render results are posted back to the dispatcher, so the cache
// and callbacks are only ever touched from there.
type Pipeline struct {
	disp     loop.Dispatcher
	renderer Renderer
	total    int
	logger   *slog.Logger
	dpi      float64
	cache    *Cache
	display  DisplayFunc
	fail     ErrorFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inflight map[int]bool
	want     int // page awaiting display, -1 if none
	closed   bool
}

// NewPipeline returns a pipeline for a document of total pages.
func NewPipeline(d loop.Dispatcher, r Renderer, total int, opts ...PipelineOption) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		disp:     d,
		renderer: r,
		total:    total,
		logger:   slog.Default(),
		dpi:      DefaultDPI,
		display:  func(int, image.Image) {},
		fail:     func(int, error) {},
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[int]bool),
		want:     -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = NewCache(DefaultCapacity)
	}
	return p
}

// Cache returns the pipeline's page cache.
func (p *Pipeline) Cache() *Cache { return p.cache }

// DisplayPage shows page. A cached bitmap is displayed immediately and the
// following page is preloaded. Otherwise the page is rendered in the
// background and displayed once ready, unless another page has been
// requested in the meantime.
func (p *Pipeline) DisplayPage(page int) error {
	if p.closed {
		return book.ErrClosed
	}
	if page < 0 || page >= p.total {
		return &book.RenderError{Page: page, Err: fmt.Errorf("page out of range [1, %d]", p.total)}
	}

	if img, ok := p.cache.Get(page); ok {
		p.want = -1
		p.display(page, img)
		p.Preload(page + 1)
		return nil
	}

	p.want = page
	if !p.inflight[page] {
		p.start(page)
	}
	return nil
}

// Preload renders page into the cache without displaying it. It is a no-op
// for out-of-range, cached or already rendering pages.
func (p *Pipeline) Preload(page int) {
	if p.closed || page < 0 || page >= p.total {
		return
	}
	if p.cache.Contains(page) || p.inflight[page] {
		return
	}
	p.start(page)
}

// RenderPage renders page synchronously at dpi. It may be called from any
// goroutine and does not touch the cache.
func (p *Pipeline) RenderPage(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if page < 0 || page >= p.total {
		return nil, &book.RenderError{Page: page, Err: fmt.Errorf("page out of range [1, %d]", p.total)}
	}
	img, err := p.renderer.RenderPage(ctx, page, dpi)
	if err != nil {
		return nil, &book.RenderError{Page: page, Err: err}
	}
	if img == nil {
		return nil, &book.RenderError{Page: page, Err: errors.New("renderer returned no image")}
	}
	return img, nil
}

// Close cancels outstanding renders, waits for them to return and empties
// the cache. Results that arrive afterwards are discarded.
func (p *Pipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.wg.Wait()
	p.cache.Clear()
	clear(p.inflight)
	p.want = -1
}

func (p *Pipeline) start(page int) {
	p.inflight[page] = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		img, err := p.RenderPage(p.ctx, page, p.dpi)
		p.disp.Post(func() { p.finish(page, img, err) })
	}()
}

// finish runs on the dispatcher with the result of a background render.
func (p *Pipeline) finish(page int, img image.Image, err error) {
	if p.closed {
		return
	}
	delete(p.inflight, page)
	wanted := p.want == page

	if err != nil {
		if !wanted {
			p.logger.Debug("preload failed", "page", page, "error", err)
			return
		}
		p.want = -1
		p.logger.Warn("page render failed", "page", page, "error", err)
		p.fail(page, err)
		return
	}

	if evicted, ok := p.cache.Put(page, img); ok {
		p.logger.Debug("page evicted", "page", evicted)
	}
	if wanted {
		p.want = -1
		p.display(page, img)
		p.Preload(page + 1)
	}
}

// wait blocks until every started render has returned. Tests use it to
// make background work deterministic.
func (p *Pipeline) wait() { p.wg.Wait() }
