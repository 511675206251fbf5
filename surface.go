package reader

import (
	"image"

	"github.com/simp-lee/reader/book"
)

// Surface is the view a Session renders into. Its methods are called on the
// dispatcher goroutine only.
type Surface interface {
	// ShowUnit displays the content of a structured unit.
	ShowUnit(u book.Unit)

	// ShowPage displays a rendered raster page.
	ShowPage(page int, img image.Image)

	// ShowError reports a failure the reader should see, such as a page that
	// could not be rendered or a link that leads nowhere.
	ShowError(err error)

	// ScrollFraction returns the current vertical scroll position in [0, 1].
	ScrollFraction() float64

	// SetScrollFraction scrolls to f in [0, 1].
	SetScrollFraction(f float64)

	// ScrollToAnchor brings the element with the given id into view and
	// reports whether it exists.
	ScrollToAnchor(id string) bool

	// ContentExtent returns the laid-out height of structured content.
	ContentExtent() float64

	// ViewportHeights returns the visible height and the total content
	// height of a raster page view.
	ViewportHeights() (viewport, content float64)

	// ViewportWidth returns the visible width in pixels.
	ViewportWidth() int
}
