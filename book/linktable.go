package book

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// LinkTable maps normalized link targets to unit indices. It is built once
// per structured document and is read-only afterwards.
//
// Every spine item is registered under four key forms (see KeyForms). When
// two spine items produce the same key, the earlier spine position keeps it.
type LinkTable struct {
	keys map[string]int
}

// NewLinkTable returns an empty table.
func NewLinkTable() *LinkTable {
	return &LinkTable{keys: make(map[string]int)}
}

// Add maps key to unit unless key is already present. It reports whether the
// key was stored.
func (t *LinkTable) Add(key string, unit int) bool {
	if key == "" {
		return false
	}
	if _, exists := t.keys[key]; exists {
		return false
	}
	t.keys[key] = unit
	return true
}

// AddSpineItem registers every key form of href for unit. dir is the folder
// containing the package descriptor. It returns the keys that were already
// claimed by a different unit.
func (t *LinkTable) AddSpineItem(dir, href string, unit int) (collisions []string) {
	for _, key := range KeyForms(dir, href) {
		if prev, exists := t.keys[key]; exists {
			if prev != unit {
				collisions = append(collisions, key)
			}
			continue
		}
		t.keys[key] = unit
	}
	return collisions
}

// Lookup returns the unit registered for key.
func (t *LinkTable) Lookup(key string) (int, bool) {
	if t == nil {
		return 0, false
	}
	idx, ok := t.keys[key]
	return idx, ok
}

// Resolve looks ref up under each of its key forms, normalizing against dir,
// and returns the first match.
func (t *LinkTable) Resolve(dir, ref string) (int, bool) {
	for _, key := range KeyForms(dir, ref) {
		if idx, ok := t.Lookup(key); ok {
			return idx, true
		}
	}
	return 0, false
}

// Len returns the number of keys in the table.
func (t *LinkTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// KeyForms returns the lookup keys for ref in resolution order: the path
// normalized against dir, the raw reference, the basename, and the basename
// with its extension stripped. Any fragment is removed first; duplicate forms
// are collapsed.
func KeyForms(dir, ref string) []string {
	ref, _ = SplitFragment(strings.TrimSpace(ref))
	if ref == "" {
		return nil
	}

	forms := make([]string, 0, 4)
	add := func(k string) {
		if k == "" || k == "." || k == "/" {
			return
		}
		for _, f := range forms {
			if f == k {
				return
			}
		}
		forms = append(forms, k)
	}

	add(NormalizePath(dir, ref))
	add(ref)
	base := ref
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	add(base)
	if ext := path.Ext(base); ext != "" && ext != base {
		add(strings.TrimSuffix(base, ext))
	}
	return forms
}

// NormalizePath joins ref onto dir, percent-decodes it and cleans the
// result. Leading slashes on ref are ignored.
func NormalizePath(dir, ref string) string {
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	ref = strings.TrimLeft(ref, "/")
	if ref == "" {
		return ""
	}
	if dir == "" || dir == "." {
		return path.Clean(ref)
	}
	return path.Clean(path.Join(dir, ref))
}

// SplitFragment splits href at the first '#'.
func SplitFragment(href string) (ref, fragment string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}

// ResourceTable maps the archive paths named by image references in unit
// content to absolute paths of extracted files. Unlike LinkTable it is filled concurrently while
// units load, so access is synchronised.
type ResourceTable struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewResourceTable returns an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{files: make(map[string]string)}
}

// Add records the file resolved for name. The first resolution wins.
func (t *ResourceTable) Add(name, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.files[name]; !exists {
		t.files[name] = file
	}
}

// Lookup returns the file recorded for name.
func (t *ResourceTable) Lookup(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[name]
	return f, ok
}

// Len returns the number of recorded resources.
func (t *ResourceTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}
