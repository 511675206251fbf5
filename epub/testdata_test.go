package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content) and returns a *zip.Reader over the resulting bytes.
// It calls t.Fatal on any error.
func buildTestZip(t testing.TB, files map[string]string) *zip.Reader {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestZip: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("buildTestZip: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestZip: close writer: %v", err)
	}

	data := buf.Bytes()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestEPubFile writes an ePub (ZIP) archive to a temporary file and returns
// the file path. This variant is useful for testing Load, which requires a
// file path.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "test.epub")
	if err := os.WriteFile(fp, buildTestEPubBytes(t, files), 0644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// buildTestEPubBytes returns the ZIP bytes of an ePub with the "mimetype"
// entry written first.
func buildTestEPubBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	// Write mimetype first if present (OCF requires it as the first entry).
	if mt, ok := files["mimetype"]; ok {
		fw, err := zw.Create("mimetype")
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create mimetype: %v", err)
		}
		if _, err := io.WriteString(fw, mt); err != nil {
			t.Fatalf("buildTestEPubBytes: write mimetype: %v", err)
		}
	}
	for name, content := range files {
		if name == "mimetype" {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("buildTestEPubBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestEPubBytes: close writer: %v", err)
	}

	return buf.Bytes()
}

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testBookFiles returns an ePub 2 package with one unit per href. Hrefs are
// relative to OEBPS/content.opf; each unit gets a heading with id "top" and a
// paragraph. An NCX lists every unit under the title "Part N".
func testBookFiles(hrefs ...string) map[string]string {
	var manifest, spine, nav strings.Builder
	manifest.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
	files := map[string]string{
		"mimetype":               expectedMimetype,
		"META-INF/container.xml": testContainerXML,
	}
	for i, href := range hrefs {
		fmt.Fprintf(&manifest, `<item id="u%d" href="%s" media-type="application/xhtml+xml"/>`, i, href)
		fmt.Fprintf(&spine, `<itemref idref="u%d"/>`, i)
		fmt.Fprintf(&nav, `<navPoint id="np%d"><navLabel><text>Part %d</text></navLabel><content src="%s"/></navPoint>`, i, i+1, href)
		files["OEBPS/"+href] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>Unit %d</title></head>
<body><h1 id="top">Unit %d</h1><p>Text of unit %d.</p></body></html>`, i, i, i)
	}
	files["OEBPS/content.opf"] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest>%s</manifest>
  <spine toc="ncx">%s</spine>
</package>`, manifest.String(), spine.String())
	files["OEBPS/toc.ncx"] = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1"><navMap>%s</navMap></ncx>`, nav.String())
	return files
}
