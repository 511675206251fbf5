package pdfpage

import (
	"errors"
	"log/slog"

	"github.com/simp-lee/reader/book"
)

// Load opens the raster document at path and returns a one-unit-per-page
// Document together with its Handle. Closing the document closes the handle.
//
// Like epub.Load, Load never returns a nil Document: on failure it returns a
// placeholder document, a nil Handle and a *book.FormatError.
func Load(path string, opener Opener, logger *slog.Logger) (*book.Document, Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h, err := opener.Open(path)
	if err != nil {
		return degrade(logger, path, err)
	}
	n := h.PageCount()
	if n <= 0 {
		h.Close()
		return degrade(logger, path, errors.New("pdfpage: document has no pages"))
	}

	doc := &book.Document{
		Kind:  book.KindRaster,
		Path:  path,
		Units: make([]book.Unit, n),
	}
	for i := range doc.Units {
		doc.Units[i].Index = i
	}
	doc.OnClose(h.Close)
	logger.Debug("raster document opened", "path", path, "pages", n)
	return doc, h, nil
}

func degrade(logger *slog.Logger, path string, cause error) (*book.Document, Handle, error) {
	ferr := &book.FormatError{Path: path, Err: cause}
	logger.Warn("cannot read PDF, showing placeholder", "path", path, "error", cause)
	return book.NewPlaceholderDocument(path, ferr), nil, ferr
}
