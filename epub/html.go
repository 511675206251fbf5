package epub

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// namedEntities lists the HTML named entities that appear in real-world OPF
// and NCX files. encoding/xml only knows the five XML entities, so these are
// rewritten to numeric references before parsing.
var namedEntities = map[string]rune{
	"nbsp": 160, "mdash": 8212, "ndash": 8211, "hellip": 8230,
	"lsquo": 8216, "rsquo": 8217, "ldquo": 8220, "rdquo": 8221,
	"copy": 169, "reg": 174, "trade": 8482, "bull": 8226, "middot": 183,
	"eacute": 233, "egrave": 232, "ecirc": 234, "euml": 235,
	"aacute": 225, "agrave": 224, "acirc": 226, "auml": 228,
	"iacute": 237, "igrave": 236, "icirc": 238, "iuml": 239,
	"oacute": 243, "ograve": 242, "ocirc": 244, "ouml": 246,
	"uacute": 250, "ugrave": 249, "ucirc": 251, "uuml": 252,
	"ntilde": 241, "ccedil": 231, "times": 215, "divide": 247,
	"deg": 176, "para": 182, "sect": 167, "laquo": 171, "raquo": 187,
	"iexcl": 161, "iquest": 191,
}

var namedEntityPattern = func() *regexp.Regexp {
	names := make([]string, 0, len(namedEntities))
	for name := range namedEntities {
		names = append(names, name)
	}
	sort.Strings(names)
	return regexp.MustCompile(`(?i)&(` + strings.Join(names, "|") + `);`)
}()

// preprocessHTMLEntities rewrites known named entities, matched
// case-insensitively, to numeric character references.
func preprocessHTMLEntities(data []byte) []byte {
	return namedEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		r, ok := namedEntities[strings.ToLower(string(match[1:len(match)-1]))]
		if !ok {
			return match
		}
		return []byte("&#" + strconv.Itoa(int(r)) + ";")
	})
}

var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodeToUTF8 converts unit content to UTF-8. An encoding named in the XML
// declaration wins. Otherwise valid UTF-8 is kept as is and anything else is
// decoded using <meta charset>, falling back to windows-1252.
func decodeToUTF8(data []byte) []byte {
	data = stripBOM(data)

	var (
		enc  encoding.Encoding
		name string
	)
	if m := xmlDeclEncoding.FindSubmatch(data); m != nil {
		enc, name = charset.Lookup(string(m[1]))
	}
	if enc == nil {
		if utf8.Valid(data) {
			return data
		}
		enc, name, _ = charset.DetermineEncoding(data, "text/html")
	}
	if name == "utf-8" {
		return data
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return data
	}
	return out
}

// imageRef is one image reference found in unit content.
type imageRef struct {
	node *html.Node
	attr int
}

// rewriteImages parses content, passes every image reference to resolve and
// replaces it with the returned URL when ok is true. If content cannot be
// parsed, or no reference changed, it is returned as is.
func rewriteImages(content []byte, resolve func(src string) (string, bool)) []byte {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return content
	}

	var refs []imageRef
	collectImageRefs(doc, &refs)

	changed := false
	for _, r := range refs {
		val := strings.TrimSpace(r.node.Attr[r.attr].Val)
		if val == "" || strings.HasPrefix(val, "#") || hasURIScheme(val) {
			continue
		}
		if u, ok := resolve(val); ok {
			r.node.Attr[r.attr].Val = u
			changed = true
		}
	}
	if !changed {
		return content
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return content
	}
	return buf.Bytes()
}

// collectImageRefs walks the tree collecting <img src> and SVG
// <image href|xlink:href> attributes.
func collectImageRefs(n *html.Node, refs *[]imageRef) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.Img:
			for i, a := range n.Attr {
				if matchAttr(a, "", "src") {
					*refs = append(*refs, imageRef{n, i})
				}
			}
		case n.DataAtom == atom.Image || n.Data == "image":
			for i, a := range n.Attr {
				if matchAttr(a, "xlink", "href") || matchAttr(a, "", "href") {
					*refs = append(*refs, imageRef{n, i})
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectImageRefs(c, refs)
	}
}

// hasURIScheme reports whether s starts with a URI scheme such as "data:",
// "http:" or "mailto:".
func hasURIScheme(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	// RFC 3986: a scheme starts with a letter.
	if !((s[0] >= 'A' && s[0] <= 'Z') || (s[0] >= 'a' && s[0] <= 'z')) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			// A single letter before ':' is a Windows drive, not a scheme.
			return i > 1
		}
		if !(c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return false
}

// matchAttr checks if an html.Attribute matches the given namespace and key.
// x/net/html records foreign attributes either in Namespace or as a
// prefixed Key, so both are accepted.
func matchAttr(attr html.Attribute, namespace, key string) bool {
	if namespace == "" {
		return attr.Key == key && attr.Namespace == ""
	}
	if attr.Namespace == namespace && attr.Key == key {
		return true
	}
	return attr.Key == namespace+":"+key
}

// HasAnchor reports whether unit content has an element whose id or name
// attribute equals id.
func HasAnchor(content []byte, id string) bool {
	if id == "" {
		return false
	}
	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			for {
				key, val, more := z.TagAttr()
				if (string(key) == "id" || string(key) == "name") && string(val) == id {
					return true
				}
				if !more {
					break
				}
			}
		}
	}
}
