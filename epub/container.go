package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models META-INF/container.xml, the index of package
// descriptors in an ePub.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// opfMediaType is the media type of an OPF package descriptor.
const opfMediaType = "application/oebps-package+xml"

// locateOPF returns the ZIP-internal path of the package descriptor.
//
// It reads META-INF/container.xml (case-insensitive lookup). If the container
// is absent, malformed, lists no rootfile, or points at an entry that does not
// exist, it falls back to scanning for any ".opf" entry. The returned warning
// is non-empty when the fallback was used because the container was broken.
func locateOPF(ix *archiveIndex) (opfPath, warning string, err error) {
	if f := ix.find(containerPath); f != nil {
		p, cerr := parseContainerXML(f, ix.limit)
		if cerr == nil {
			if of := ix.find(p); of != nil {
				return of.Name, "", nil
			}
			cerr = fmt.Errorf("epub: container.xml points at missing %s", p)
		}
		warning = cerr.Error()
	}

	p, err := fallbackFindOPF(ix.zr)
	return p, warning, err
}

// parseContainerXML returns the full-path of the OPF rootfile, preferring the
// one whose media type is the OPF media type.
func parseContainerXML(f *zip.File, limit int64) (string, error) {
	data, err := readZipFileWithLimit(f, limit)
	if err != nil {
		return "", fmt.Errorf("epub: read container.xml: %w", err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("epub: parse container.xml: %w", err)
	}
	if len(c.RootFiles) == 0 {
		return "", fmt.Errorf("epub: container.xml has no rootfile entries: %w", ErrInvalidEPub)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}
	if fallbackPath == "" {
		return "", fmt.Errorf("epub: container.xml rootfile has empty full-path: %w", ErrInvalidEPub)
	}
	return fallbackPath, nil
}

// fallbackFindOPF returns the first non-directory entry ending in ".opf"
// (case-insensitive).
func fallbackFindOPF(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("epub: no OPF file found in archive: %w", ErrInvalidEPub)
}
