package epub

import (
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/simp-lee/reader/book"
)

// conventionalRoots are folders that authoring tools commonly use for
// content and images. References that omit them are retried with each one.
var conventionalRoots = []string{"OEBPS/", "EPUB/", "OPS/", "images/", "Images/", "img/"}

// resourceFinder locates image files in an extracted archive.
type resourceFinder struct {
	root   string // extraction directory
	opfDir string // ZIP-internal folder of the package descriptor
	table  *book.ResourceTable

	indexOnce sync.Once
	byName    map[string]string // folded basename -> shallowest file
}

func newResourceFinder(root, opfDir string, table *book.ResourceTable) *resourceFinder {
	return &resourceFinder{
		root:   root,
		opfDir: opfDir,
		table:  table,
	}
}

// cleanReference strips fragment and query components from src and
// percent-decodes what remains.
func cleanReference(src string) string {
	src = strings.TrimSpace(src)
	if i := strings.IndexByte(src, '#'); i >= 0 {
		src = src[:i]
	}
	if i := strings.IndexByte(src, '?'); i >= 0 {
		src = src[:i]
	}
	if decoded, err := url.PathUnescape(src); err == nil {
		src = decoded
	}
	return src
}

// candidates returns the ZIP-internal paths probed for src, in order.
// unitDir is the folder of the unit that references it.
func (r *resourceFinder) candidates(unitDir, src string) []string {
	trimmed := strings.TrimLeft(src, "/")
	out := []string{src, trimmed}
	if !strings.HasPrefix(src, "/") {
		out = append(out, path.Join(unitDir, src))
	}
	out = append(out, path.Join(r.opfDir, trimmed))
	for _, root := range conventionalRoots {
		out = append(out, root+trimmed)
	}
	return out
}

// resolve returns the absolute path of the file src refers to. Resolutions
// are recorded in the resource table under referenceKey, so the same src
// from units in different folders is resolved separately.
func (r *resourceFinder) resolve(unitDir, src string) (string, bool) {
	clean := cleanReference(src)
	if clean == "" {
		return "", false
	}
	key := referenceKey(unitDir, clean)
	if f, ok := r.table.Lookup(key); ok {
		return f, true
	}

	for _, c := range r.candidates(unitDir, clean) {
		c = path.Clean(c)
		if !isSafePath(c) || c == "." {
			continue
		}
		abs := filepath.Join(r.root, filepath.FromSlash(c))
		if isRegularFile(abs) {
			r.table.Add(key, abs)
			return abs, true
		}
	}

	if abs, ok := r.search(path.Base(clean)); ok {
		r.table.Add(key, abs)
		return abs, true
	}
	return "", false
}

// referenceKey is the archive path a cleaned reference names: root-absolute
// references as written, relative ones joined to the referring unit's folder.
func referenceKey(unitDir, clean string) string {
	if strings.HasPrefix(clean, "/") {
		return path.Clean(strings.TrimLeft(clean, "/"))
	}
	return path.Join(unitDir, clean)
}

// search finds a file named name anywhere below root, ignoring case and
// Unicode normalisation form. Shallower matches win.
func (r *resourceFinder) search(name string) (string, bool) {
	r.indexOnce.Do(r.buildIndex)
	f, ok := r.byName[r.key(name)]
	return f, ok
}

// key folds name for comparison. A Caser holds state, so each call gets
// its own.
func (r *resourceFinder) key(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

func (r *resourceFinder) buildIndex() {
	r.byName = make(map[string]string)
	depth := make(map[string]int)
	_ = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return nil
		}
		k := r.key(d.Name())
		n := strings.Count(filepath.ToSlash(rel), "/")
		if prev, exists := depth[k]; exists && prev <= n {
			return nil
		}
		depth[k] = n
		r.byName[k] = p
		return nil
	})
}

// fileURL returns the file:// URL of an absolute path.
func fileURL(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String()
}

func isRegularFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
