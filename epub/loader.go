package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/reader/book"
)

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// DefaultWorkers is the number of units whose content is read concurrently.
const DefaultWorkers = 4

type options struct {
	logger       *slog.Logger
	workers      int
	extractDir   string
	maxEntrySize int64
}

// Option configures Load and LoadBytes.
type Option func(*options)

// WithLogger sets the logger used to report degraded content. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers bounds how many units are read concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithExtractDir sets the parent directory of per-document extraction
// directories. The default is os.TempDir().
func WithExtractDir(dir string) Option {
	return func(o *options) { o.extractDir = dir }
}

// WithMaxEntrySize limits the decompressed size of any single archive entry.
func WithMaxEntrySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		workers:      DefaultWorkers,
		maxEntrySize: maxDecompressSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads the ePub at path.
//
// Load never returns a nil Document. When the package cannot be opened or
// parsed it returns a single-unit placeholder document together with a
// *book.FormatError. The caller must Close the document to remove its
// extraction directory.
func Load(path string, opts ...Option) (*book.Document, error) {
	o := buildOptions(opts)
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return degrade(o, path, fmt.Errorf("epub: open %s: %w", path, err))
	}
	defer zrc.Close()
	return load(&zrc.Reader, path, o)
}

// LoadBytes reads an ePub held in memory. It behaves like Load.
func LoadBytes(data []byte, opts ...Option) (*book.Document, error) {
	o := buildOptions(opts)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return degrade(o, "", fmt.Errorf("epub: open zip: %w", err))
	}
	return load(zr, "", o)
}

// degrade returns the placeholder document for a package that cannot be read.
func degrade(o options, path string, cause error) (*book.Document, error) {
	ferr := &book.FormatError{Path: path, Err: cause}
	o.logger.Warn("cannot read ePub, showing placeholder", "path", path, "error", cause)
	return book.NewPlaceholderDocument(path, ferr), ferr
}

func load(zr *zip.Reader, srcPath string, o options) (*book.Document, error) {
	ix := newArchiveIndex(zr, o.maxEntrySize)
	var warnings []string
	if w := checkMimetype(ix); w != "" {
		warnings = append(warnings, w)
	}

	opfPath, w, err := locateOPF(ix)
	if err != nil {
		return degrade(o, srcPath, err)
	}
	if w != "" {
		warnings = append(warnings, w)
	}

	fontObfuscation, err := checkDRM(ix)
	if err != nil {
		return degrade(o, srcPath, err)
	}
	if fontObfuscation {
		warnings = append(warnings, "font obfuscation detected; obfuscated fonts may not render correctly")
	}

	opfData, err := ix.read(opfPath)
	if err != nil {
		return degrade(o, srcPath, fmt.Errorf("epub: read OPF file: %w", err))
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return degrade(o, srcPath, err)
	}

	byID := buildManifest(pkg.Manifest)
	spine, dropped := buildSpine(pkg.Spine, byID)
	for _, id := range dropped {
		warnings = append(warnings, fmt.Sprintf("spine itemref %q not in manifest", id))
	}
	if len(spine) == 0 {
		return degrade(o, srcPath, fmt.Errorf("epub: spine has no readable items: %w", ErrInvalidEPub))
	}

	opfDir := path.Dir(opfPath)
	if opfDir == "." {
		opfDir = ""
	}

	doc := &book.Document{
		Kind:      book.KindStructured,
		Path:      srcPath,
		Links:     book.NewLinkTable(),
		Resources: book.NewResourceTable(),
	}

	for i, it := range spine {
		for _, key := range doc.Links.AddSpineItem(opfDir, it.Href, i) {
			warnings = append(warnings, fmt.Sprintf("link key %q of unit %d already maps to an earlier unit", key, i))
		}
	}

	var finder *resourceFinder
	root, err := os.MkdirTemp(o.extractDir, "reader-epub-*")
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("cannot create extraction dir: %v", err))
	} else {
		doc.OnClose(func() error { return os.RemoveAll(root) })
		n, ew, err := extractArchive(zr, root, o.maxEntrySize)
		warnings = append(warnings, ew...)
		if err != nil {
			warnings = append(warnings, err.Error())
		}
		o.logger.Debug("extracted ePub", "path", srcPath, "dir", root, "files", n)
		finder = newResourceFinder(root, opfDir, doc.Resources)
	}

	doc.Units = make([]book.Unit, len(spine))
	unitWarnings := make([]string, len(spine))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, it := range spine {
		i, it := i, it
		g.Go(func() error {
			u, err := loadUnit(ix, finder, opfPath, root, i, it)
			if err != nil {
				unitWarnings[i] = err.Error()
				o.logger.Warn("unit content unavailable", "unit", i, "href", it.Href, "error", err)
			}
			doc.Units[i] = u
			return nil
		})
	}
	_ = g.Wait()
	for _, uw := range unitWarnings {
		if uw != "" {
			warnings = append(warnings, uw)
		}
	}

	if src, err := findTOCSource(ix, pkg, byID, opfPath); err == nil {
		total := len(spine)
		links := doc.Links
		logger := o.logger
		doc.SetTOCBuilder(func() []book.TOCEntry {
			points, err := src.parse()
			if err != nil {
				logger.Warn("table of contents unreadable", "path", src.path, "error", err)
				return nil
			}
			return buildTOC(points, links, opfDir, total)
		})
	}

	for _, w := range warnings {
		o.logger.Warn("ePub load warning", "path", srcPath, "warning", w)
	}
	doc.Warnings = warnings
	return doc, nil
}

// loadUnit reads one spine item. On failure it returns a placeholder unit
// together with the cause; the caller keeps loading the remaining units.
func loadUnit(ix *archiveIndex, finder *resourceFinder, opfPath, root string, i int, it spineItem) (book.Unit, error) {
	title := fmt.Sprintf("Chapter %d", i+1)
	u := book.Unit{Index: i, Href: resolveRelativePath(opfPath, it.Href)}

	f := ix.find(u.Href)
	if u.Href == "" || f == nil {
		u.Content = book.PlaceholderHTML(title, "File not found")
		u.Placeholder = true
		return u, fmt.Errorf("%w: %s", book.ErrResourceNotFound, it.Href)
	}
	u.Href = f.Name
	unitDir := path.Dir(f.Name)
	if root != "" {
		u.BaseDir = filepath.Join(root, filepath.FromSlash(unitDir))
	}

	data, err := readZipFileWithLimit(f, ix.limit)
	if err != nil {
		u.Content = book.PlaceholderHTML(title, err.Error())
		u.Placeholder = true
		return u, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		u.Content = book.PlaceholderHTML(title, "No content")
		u.Placeholder = true
		return u, fmt.Errorf("epub: unit %s is empty", f.Name)
	}

	data = decodeToUTF8(data)
	if finder != nil {
		data = rewriteImages(data, func(src string) (string, bool) {
			abs, ok := finder.resolve(unitDir, src)
			if !ok {
				return "", false
			}
			return fileURL(abs), true
		})
	}
	u.Content = data
	return u, nil
}

// checkMimetype returns a warning when the first entry is not a "mimetype"
// file containing "application/epub+zip".
func checkMimetype(ix *archiveIndex) string {
	if len(ix.zr.File) == 0 {
		return "empty ZIP archive; mimetype entry missing"
	}
	first := ix.zr.File[0]
	if first.Name != "mimetype" {
		return "first ZIP entry is not \"mimetype\""
	}
	data, err := readZipFileWithLimit(first, ix.limit)
	if err != nil {
		return fmt.Sprintf("cannot read mimetype entry: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != expectedMimetype {
		return fmt.Sprintf("unexpected mimetype: %q", got)
	}
	return ""
}
