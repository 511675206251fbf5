package epub

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// opfPackage represents the root <package> element of an OPF file. Only the
// parts that drive reading order and navigation are decoded.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string            `xml:"toc,attr"`
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// parseOPF parses the OPF file content and returns the parsed package structure.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("epub: parse OPF: %w", err)
	}
	if pkg.Version == "" {
		pkg.Version = "2.0"
	}
	return &pkg, nil
}

// buildManifest indexes manifest items by ID. Items without an id or href
// are ignored; for a repeated id the first item wins.
func buildManifest(manifest opfManifest) map[string]*manifestItem {
	byID := make(map[string]*manifestItem, len(manifest.Items))
	for _, item := range manifest.Items {
		id := strings.TrimSpace(item.ID)
		href := strings.TrimSpace(item.Href)
		if id == "" || href == "" {
			continue
		}
		if _, exists := byID[id]; exists {
			continue
		}
		byID[id] = &manifestItem{
			ID:         id,
			Href:       href,
			MediaType:  item.MediaType,
			Properties: item.Properties,
		}
	}
	return byID
}

// buildSpine resolves spine itemrefs against the manifest. Itemrefs whose
// idref is unknown are dropped and reported.
func buildSpine(spine opfSpine, byID map[string]*manifestItem) (items []spineItem, dropped []string) {
	items = make([]spineItem, 0, len(spine.ItemRefs))
	for _, ref := range spine.ItemRefs {
		idref := strings.TrimSpace(ref.IDRef)
		mi, ok := byID[idref]
		if !ok {
			dropped = append(dropped, idref)
			continue
		}
		items = append(items, spineItem{
			ID:        mi.ID,
			Href:      mi.Href,
			MediaType: mi.MediaType,
			Linear:    ref.Linear != "no",
		})
	}
	return items, dropped
}
