package book

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the reading core.
var (
	// ErrFormat indicates the package could not be opened or parsed. The
	// loader still returns a usable single-unit placeholder document.
	ErrFormat = errors.New("book: malformed or unreadable package")

	// ErrResourceNotFound indicates a chapter or image referenced by the
	// package does not exist in the archive.
	ErrResourceNotFound = errors.New("book: resource not found")

	// ErrNavigation indicates an in-content link could not be resolved to a
	// unit of the current document.
	ErrNavigation = errors.New("book: link cannot be resolved")

	// ErrRender indicates a raster page failed to render.
	ErrRender = errors.New("book: page render failed")

	// ErrPersistence indicates a reading position or bookmark could not be
	// loaded or saved.
	ErrPersistence = errors.New("book: persistence failed")

	// ErrClosed indicates the document or session has been closed.
	ErrClosed = errors.New("book: closed")
)

// FormatError reports a package that could not be opened or parsed.
type FormatError struct {
	// Path is the file path of the package, if known.
	Path string

	// Err is the underlying cause.
	Err error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("book: format error: %v", e.Err)
	}
	return fmt.Sprintf("book: format error in %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrFormat and the underlying cause.
func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

// NavigationError reports an href that resolved to no unit.
type NavigationError struct {
	Href string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("book: cannot navigate to link %q", e.Href)
}

func (e *NavigationError) Unwrap() error { return ErrNavigation }

// RenderError reports a raster page that failed to render.
type RenderError struct {
	// Page is the zero-based unit index of the page.
	Page int

	// Err is the renderer's error.
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("book: render page %d: %v", e.Page+1, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}
