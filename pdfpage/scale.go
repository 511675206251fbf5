package pdfpage

import (
	"image"

	"golang.org/x/image/draw"
)

// DefaultMargin is the horizontal space in pixels left around a page fitted
// to the viewport.
const DefaultMargin = 40

// FitWidth scales img so that it is width pixels wide, preserving the aspect
// ratio. img is returned unchanged if width is not positive or already
// matches.
func FitWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() == 0 || b.Dx() == width {
		return img
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// FitViewport fits img to a viewport of the given width, leaving
// DefaultMargin pixels free.
func FitViewport(img image.Image, viewportWidth int) image.Image {
	return FitWidth(img, viewportWidth-DefaultMargin)
}
