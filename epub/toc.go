package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/simp-lee/reader/book"
)

const ncxMediaType = "application/x-dtbncx+xml"

// tocSource is a navigation document read from the archive at load time.
// Parsing is deferred until the table of contents is first requested.
type tocSource struct {
	path  string // ZIP-internal path
	data  []byte
	isNav bool // ePub 3 nav document rather than NCX
}

// navPoint is a TOC entry before its target is mapped to a unit.
type navPoint struct {
	title string
	href  string // ZIP-internal path, possibly with a fragment
	raw   string // href as written in the source
}

// findTOCSource locates the navigation document. ePub 3 packages prefer the
// nav document; otherwise the NCX is found through the spine toc attribute,
// the manifest media type, and finally any ".ncx" entry.
func findTOCSource(ix *archiveIndex, pkg *opfPackage, byID map[string]*manifestItem, opfPath string) (*tocSource, error) {
	if strings.HasPrefix(pkg.Version, "3") {
		for _, raw := range pkg.Manifest.Items {
			if !hasToken(raw.Properties, "nav") {
				continue
			}
			if src, err := readTOCSource(ix, opfPath, raw.Href, true); err == nil {
				return src, nil
			}
			break
		}
	}

	if mi, ok := byID[strings.TrimSpace(pkg.Spine.Toc)]; ok {
		if src, err := readTOCSource(ix, opfPath, mi.Href, false); err == nil {
			return src, nil
		}
	}
	for _, raw := range pkg.Manifest.Items {
		if strings.EqualFold(strings.TrimSpace(raw.MediaType), ncxMediaType) {
			if src, err := readTOCSource(ix, opfPath, raw.Href, false); err == nil {
				return src, nil
			}
		}
	}
	for _, f := range ix.zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
			data, err := readZipFileWithLimit(f, ix.limit)
			if err != nil {
				return nil, err
			}
			return &tocSource{path: f.Name, data: data}, nil
		}
	}
	return nil, fmt.Errorf("%w: no navigation document", ErrFileNotFound)
}

func readTOCSource(ix *archiveIndex, opfPath, href string, isNav bool) (*tocSource, error) {
	p := resolveRelativePath(opfPath, href)
	if p == "" {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, href)
	}
	f := ix.find(p)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	data, err := readZipFileWithLimit(f, ix.limit)
	if err != nil {
		return nil, err
	}
	return &tocSource{path: f.Name, data: data, isNav: isNav}, nil
}

// parse returns the source's entries in document order, nested entries
// flattened after their parent.
func (s *tocSource) parse() ([]navPoint, error) {
	if s.isNav {
		return parseNavDocument(s.data, s.path)
	}
	return parseNCX(s.data, s.path)
}

// buildTOC maps navigation entries to units. opfDir is the folder of the
// package descriptor; total is the unit count. Entries whose target cannot
// be resolved keep their own ordinal, clamped to the last unit.
func buildTOC(points []navPoint, links *book.LinkTable, opfDir string, total int) []book.TOCEntry {
	if total == 0 {
		return nil
	}
	out := make([]book.TOCEntry, 0, len(points))
	for i, p := range points {
		idx, ok := resolveTOCTarget(p, links, opfDir)
		if !ok {
			idx = min(i, total-1)
		}
		title := p.title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		out = append(out, book.TOCEntry{Title: title, UnitIndex: idx})
	}
	return out
}

func resolveTOCTarget(p navPoint, links *book.LinkTable, opfDir string) (int, bool) {
	if p.href != "" {
		if idx, ok := links.Resolve("", p.href); ok {
			return idx, true
		}
	}
	if p.raw != "" {
		return links.Resolve(opfDir, p.raw)
	}
	return 0, false
}

// --- NCX (ePub 2) ---

type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	Points  []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	Label    string        `xml:"navLabel>text"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCX parses NCX data. ncxPath is the ZIP-internal path of the NCX
// file, used to resolve relative targets.
func parseNCX(data []byte, ncxPath string) ([]navPoint, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	var doc ncxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("epub: parse NCX: %w", err)
	}
	var out []navPoint
	flattenNCX(&out, doc.Points, ncxPath)
	return out, nil
}

func flattenNCX(out *[]navPoint, points []ncxNavPoint, ncxPath string) {
	for _, np := range points {
		p := navPoint{
			title: strings.Join(strings.Fields(np.Label), " "),
			raw:   strings.TrimSpace(np.Content.Src),
		}
		if p.raw != "" {
			p.href = resolveRelativePath(ncxPath, p.raw)
		}
		*out = append(*out, p)
		flattenNCX(out, np.Children, ncxPath)
	}
}

// --- Nav document (ePub 3) ---

// parseNavDocument returns the entries of the nav element typed "toc", or of
// the first nav element when none is typed.
func parseNavDocument(data []byte, navPath string) ([]navPoint, error) {
	doc, err := html.Parse(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return nil, fmt.Errorf("epub: parse nav document: %w", err)
	}

	var navs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(navs) == 0 {
		return nil, nil
	}

	nav := navs[0]
	for _, n := range navs {
		if hasToken(attrValue(n, "epub:type"), "toc") {
			nav = n
			break
		}
	}

	var out []navPoint
	if ol := findFirstElement(nav, atom.Ol); ol != nil {
		flattenNavList(&out, ol, navPath)
	}
	return out, nil
}

func flattenNavList(out *[]navPoint, ol *html.Node, navPath string) {
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var p navPoint
		var nested *html.Node
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.A:
				if p.raw == "" {
					p.raw = strings.TrimSpace(attrValue(c, "href"))
					if p.raw != "" {
						p.href = resolveRelativePath(navPath, p.raw)
					}
					p.title = textContent(c)
				}
			case atom.Span:
				if p.title == "" {
					p.title = textContent(c)
				}
			case atom.Ol:
				nested = c
			}
		}
		*out = append(*out, p)
		if nested != nil {
			flattenNavList(out, nested, navPath)
		}
	}
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findFirstElement returns the first descendant of n with the given tag.
func findFirstElement(n *html.Node, tag atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == tag {
			return c
		}
		if found := findFirstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// textContent returns the whitespace-collapsed text below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
