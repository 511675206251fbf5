// Package epub loads ePub 2 and ePub 3 packages into a [book.Document].
//
// Loading locates the package descriptor through META-INF/container.xml,
// falling back to a scan for any ".opf" entry. The spine becomes the unit
// sequence and every spine item is registered in the document's link table.
// The archive is extracted to a temporary directory so that images referenced
// by unit content can be rewritten to file:// URLs; the directory is removed
// when the document is closed.
//
//	doc, err := epub.Load("book.epub", epub.WithLogger(logger))
//	if err != nil {
//	    // doc is a one-unit placeholder; err is a *book.FormatError.
//	}
//	defer doc.Close()
//
// Load never fails outright. Unreadable or DRM-protected packages produce a
// placeholder document together with a [*book.FormatError]; missing or empty
// units become inline placeholders and are listed in Document.Warnings.
//
// The table of contents comes from the nav document (ePub 3) or the NCX and
// is parsed on the first call to Document.TOC.
//
// # Error Handling
//
// The package defines sentinel errors that appear inside FormatError causes:
//   - [ErrDRMProtected] – the file is DRM encrypted
//   - [ErrInvalidEPub] – structural validation failed
//   - [ErrFileNotFound] – a requested file is not in the archive
package epub
