package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxDecompressSize is the default limit for a single decompressed ZIP
// entry. It guards against zip bombs.
const maxDecompressSize int64 = 256 * 1024 * 1024

// archiveIndex provides O(1) exact and case-insensitive entry lookups.
type archiveIndex struct {
	zr    *zip.Reader
	exact map[string]*zip.File
	lower map[string]*zip.File
	limit int64
}

func newArchiveIndex(zr *zip.Reader, limit int64) *archiveIndex {
	if limit <= 0 {
		limit = maxDecompressSize
	}
	ix := &archiveIndex{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
		limit: limit,
	}
	for _, f := range zr.File {
		if _, exists := ix.exact[f.Name]; !exists {
			ix.exact[f.Name] = f
		}
		lower := strings.ToLower(f.Name)
		if _, exists := ix.lower[lower]; !exists {
			ix.lower[lower] = f
		}
	}
	return ix
}

// find looks up an entry by exact path, then case-insensitively.
func (ix *archiveIndex) find(name string) *zip.File {
	if f, ok := ix.exact[name]; ok {
		return f
	}
	if f, ok := ix.lower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}

// read returns the contents of the named entry.
func (ix *archiveIndex) read(name string) ([]byte, error) {
	f := ix.find(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return readZipFileWithLimit(f, ix.limit)
}

// resolveRelativePath resolves href relative to the directory of basePath.
// Both are ZIP-internal, forward-slash separated paths. If the result would
// escape the archive root or href is absolute, it returns "".
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	cleaned := path.Clean(path.Join(path.Dir(basePath), href))
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// isSafePath reports whether p stays inside the archive root.
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFileWithLimit reads the full contents of a ZIP entry, rejecting
// unsafe paths and entries whose real decompressed size exceeds limit.
func readZipFileWithLimit(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epub: unsafe zip entry path: %s", f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("epub: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to tell.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("epub: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("epub: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}
	return data, nil
}

// extractArchive writes every safe regular entry of zr below dir. Unsafe or
// oversized entries are skipped and reported in the returned warnings.
func extractArchive(zr *zip.Reader, dir string, limit int64) (count int, warnings []string, err error) {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isSafePath(f.Name) {
			warnings = append(warnings, fmt.Sprintf("skipped unsafe entry %q", f.Name))
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(path.Clean(f.Name)))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, warnings, fmt.Errorf("epub: create extraction dir: %w", err)
		}
		data, rerr := readZipFileWithLimit(f, limit)
		if rerr != nil {
			warnings = append(warnings, rerr.Error())
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return count, warnings, fmt.Errorf("epub: extract %s: %w", f.Name, err)
		}
		count++
	}
	return count, warnings, nil
}
