// Package book holds the document model shared by the loaders and the
// reading session.
//
// A [Document] is an ordered sequence of [Unit] values. Structured documents
// (ePub) carry raw XHTML per unit, a [LinkTable] that maps in-content link
// targets back to unit indices, and a [ResourceTable] of extracted images.
// Raster documents (PDF) carry one content-less unit per page; their pages
// are rendered on demand.
//
// # Errors
//
// Every failure in the reading core maps to one of the sentinels below. The
// structured error types unwrap to them so callers can use [errors.Is]:
//   - [ErrFormat] – the package is malformed or unreadable ([FormatError])
//   - [ErrResourceNotFound] – a chapter or image is missing
//   - [ErrNavigation] – a link cannot be resolved ([NavigationError])
//   - [ErrRender] – a raster page failed to render ([RenderError])
//   - [ErrPersistence] – a position or bookmark save failed
package book
