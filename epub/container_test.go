package epub

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// rootfiles builds a container.xml from full-path/media-type pairs.
func rootfiles(pairs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container"><rootfiles>`)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, `<rootfile full-path=%q media-type=%q/>`, pairs[i], pairs[i+1])
	}
	b.WriteString(`</rootfiles></container>`)
	return b.String()
}

func TestLocateOPF(t *testing.T) {
	standard := rootfiles("OEBPS/content.opf", opfMediaType)

	tests := []struct {
		name        string
		files       map[string]string
		want        string
		wantWarning bool
	}{
		{
			name:  "container",
			files: map[string]string{containerPath: standard, "OEBPS/content.opf": `<package/>`},
			want:  "OEBPS/content.opf",
		},
		{
			name:  "container path in other case",
			files: map[string]string{"meta-inf/container.xml": standard, "OEBPS/content.opf": `<package/>`},
			want:  "OEBPS/content.opf",
		},
		{
			name:  "byte order mark",
			files: map[string]string{containerPath: "\xEF\xBB\xBF" + standard, "OEBPS/content.opf": `<package/>`},
			want:  "OEBPS/content.opf",
		},
		{
			name:  "entry name returned in archive case",
			files: map[string]string{containerPath: standard, "oebps/Content.opf": `<package/>`},
			want:  "oebps/Content.opf",
		},
		{
			name: "package media type preferred",
			files: map[string]string{
				containerPath: rootfiles(
					"", opfMediaType,
					"OPS/preview.opf", "application/x-preview+xml",
					"OPS/book.opf", opfMediaType),
				"OPS/preview.opf": `<package/>`,
				"OPS/book.opf":    `<package/>`,
			},
			want: "OPS/book.opf",
		},
		{
			name: "first non-empty rootfile otherwise",
			files: map[string]string{
				containerPath: rootfiles(
					"", "application/x-other+xml",
					"OPS/a.opf", "application/x-other+xml",
					"OPS/b.opf", "application/x-other+xml"),
				"OPS/a.opf": `<package/>`,
			},
			want: "OPS/a.opf",
		},
		{
			name:  "no container scans for opf",
			files: map[string]string{"OEBPS/Book.OPF": `<package/>`},
			want:  "OEBPS/Book.OPF",
		},
		{
			name:        "container names a missing entry",
			files:       map[string]string{containerPath: standard, "book/package.opf": `<package/>`},
			want:        "book/package.opf",
			wantWarning: true,
		},
		{
			name:        "malformed container",
			files:       map[string]string{containerPath: `<container><rootfiles>`, "OEBPS/content.opf": `<package/>`},
			want:        "OEBPS/content.opf",
			wantWarning: true,
		},
		{
			name:        "container without rootfiles",
			files:       map[string]string{containerPath: rootfiles(), "content.opf": `<package/>`},
			want:        "content.opf",
			wantWarning: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warning, err := locateOPF(newArchiveIndex(buildTestZip(t, tt.files), 0))
			if err != nil {
				t.Fatalf("locateOPF() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("locateOPF() = %q, want %q", got, tt.want)
			}
			if (warning != "") != tt.wantWarning {
				t.Errorf("locateOPF() warning = %q, want warning %v", warning, tt.wantWarning)
			}
		})
	}
}

func TestLocateOPF_NoPackage(t *testing.T) {
	tests := map[string]map[string]string{
		"no container":         {"readme.txt": "hello"},
		"empty rootfiles":      {containerPath: rootfiles()},
		"empty full-path":      {containerPath: rootfiles("", opfMediaType)},
		"directory named .opf": {"OEBPS/dir.opf/": ""},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := locateOPF(newArchiveIndex(buildTestZip(t, files), 0))
			if !errors.Is(err, ErrInvalidEPub) {
				t.Errorf("locateOPF() error = %v, want ErrInvalidEPub", err)
			}
		})
	}
}
