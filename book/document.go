package book

import (
	"errors"
	"fmt"
	"html"
	"sync"
)

// Kind distinguishes structured (reflowable) documents from raster
// (paginated) ones. Reconciliation and caching strategies are chosen by Kind.
type Kind int

const (
	// KindStructured is a zip+XML package such as ePub.
	KindStructured Kind = iota

	// KindRaster is a paginated document such as PDF.
	KindRaster
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRaster:
		return "raster"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Unit is one navigable content chunk: an ePub spine item or a PDF page.
type Unit struct {
	// Index is the zero-based position of the unit in reading order.
	Index int

	// Href is the ZIP-internal path of the unit's content file.
	// Empty for raster units.
	Href string

	// BaseDir is the absolute directory that relative resources in Content
	// resolve against. Empty for raster units.
	BaseDir string

	// Content is the unit's XHTML with image references rewritten to
	// extracted files. Nil for raster units, which are rendered on demand.
	Content []byte

	// Placeholder reports whether Content is an inline error placeholder
	// rather than the unit's real content.
	Placeholder bool
}

// TOCEntry is one line of a flattened table of contents.
type TOCEntry struct {
	Title     string
	UnitIndex int
}

// Document is a loaded book. It is owned by a single reading session and is
// never mutated after load, except for lazy population of the TOC.
type Document struct {
	// Kind selects structured or raster behaviour.
	Kind Kind

	// Path is the source file path, if the document was opened from disk.
	Path string

	// Units holds the reading order. len(Units) is the document's unit count.
	Units []Unit

	// Links maps link targets to unit indices. Nil for raster documents.
	Links *LinkTable

	// Resources maps image references to extracted files. Nil for raster
	// documents.
	Resources *ResourceTable

	// Warnings lists non-fatal problems found while loading.
	Warnings []string

	tocOnce  sync.Once
	tocBuild func() []TOCEntry
	toc      []TOCEntry

	closeMu  sync.Mutex
	closers  []func() error
	isClosed bool
}

// TotalUnits returns the number of units in reading order.
func (d *Document) TotalUnits() int {
	return len(d.Units)
}

// Unit returns the unit at index i.
func (d *Document) Unit(i int) (Unit, bool) {
	if i < 0 || i >= len(d.Units) {
		return Unit{}, false
	}
	return d.Units[i], true
}

// SetTOCBuilder installs the function that populates the table of contents
// on the first call to TOC. It must be called before the document is shared.
func (d *Document) SetTOCBuilder(build func() []TOCEntry) {
	d.tocBuild = build
}

// TOC returns the flattened table of contents, building it on first use.
// If no builder was installed, one "Chapter N" or "Page N" entry is
// synthesised per unit.
func (d *Document) TOC() []TOCEntry {
	d.tocOnce.Do(func() {
		if d.tocBuild != nil {
			d.toc = d.tocBuild()
		}
		if len(d.toc) == 0 {
			d.toc = OrdinalTOC(d.Kind, len(d.Units))
		}
	})
	return append([]TOCEntry(nil), d.toc...)
}

// OrdinalTOC returns one synthetic entry per unit.
func OrdinalTOC(kind Kind, n int) []TOCEntry {
	label := "Chapter"
	if kind == KindRaster {
		label = "Page"
	}
	out := make([]TOCEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, TOCEntry{Title: fmt.Sprintf("%s %d", label, i+1), UnitIndex: i})
	}
	return out
}

// OnClose registers f to run when the document is closed. Functions run in
// reverse registration order.
func (d *Document) OnClose(f func() error) {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	d.closers = append(d.closers, f)
}

// Close releases resources held by the document, such as the extraction
// directory or an open raster handle. Close is idempotent.
func (d *Document) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.isClosed {
		return nil
	}
	d.isClosed = true

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return d.isClosed
}

// PlaceholderHTML returns a minimal XHTML page showing title and message.
func PlaceholderHTML(title, message string) []byte {
	return []byte("<html><body><h1>" + html.EscapeString(title) + "</h1><p>" +
		html.EscapeString(message) + "</p></body></html>")
}

// NewPlaceholderDocument returns the single-unit structured document used
// when a package cannot be read. Sessions display it instead of aborting.
func NewPlaceholderDocument(path string, cause error) *Document {
	msg := "Could not read this book."
	if cause != nil {
		msg = cause.Error()
	}
	return &Document{
		Kind: KindStructured,
		Path: path,
		Units: []Unit{{
			Index:       0,
			Content:     PlaceholderHTML("Error", msg),
			Placeholder: true,
		}},
		Links:     NewLinkTable(),
		Resources: NewResourceTable(),
		Warnings:  []string{msg},
	}
}
