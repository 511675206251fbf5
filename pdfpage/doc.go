// Package pdfpage opens PDF documents and serves their pages as bitmaps.
//
// A document is opened through an [Opener] into a [Handle] that reports its
// page count and renders pages. [Load] wraps the handle in a raster
// [book.Document] with one unit per page.
//
// Rendering is delegated: [FileOpener] parses the file with
// github.com/ledongthuc/pdf and hands each page to a pluggable [Rasterizer].
//
// [Pipeline] sits between the reading session and the renderer. It keeps the
// most recently used pages in a [Cache], renders misses on background
// goroutines and preloads the page after the one being displayed. Results
// are posted back to the session's dispatcher so the cache is only touched
// from one goroutine.
package pdfpage
