package reader

import (
	"net/url"
	"path"
	"strings"

	"github.com/simp-lee/reader/book"
	"github.com/simp-lee/reader/epub"
)

// OutcomeKind classifies what activating a link did.
type OutcomeKind int

const (
	// OutcomeUnresolved means the link led nowhere; nothing changed.
	OutcomeUnresolved OutcomeKind = iota

	// OutcomeAnchor means the link scrolled within the current unit.
	OutcomeAnchor

	// OutcomeJump means the link displayed another unit.
	OutcomeJump

	// OutcomeExternal means the link points outside the document, such as
	// a web address. The session does not follow it.
	OutcomeExternal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAnchor:
		return "anchor"
	case OutcomeJump:
		return "jump"
	case OutcomeExternal:
		return "external"
	default:
		return "unresolved"
	}
}

// Outcome describes the effect of ActivateLink.
type Outcome struct {
	Kind OutcomeKind

	// Unit is the unit displayed after the link, for anchor and jump
	// outcomes.
	Unit int

	// Fragment is the anchor id the link targeted, if any.
	Fragment string

	// URL is the target of an external link.
	URL string
}

// ActivateLink follows an href found in the current unit's content.
//
// A bare "#id" scrolls within the current unit. Any other reference is
// resolved through the document's link table; a jump to another unit
// records the position being left in the back history, unless the history
// already holds the start of a chain of jumps. An unresolvable link returns
// a *book.NavigationError, is reported to the surface and changes nothing.
func (s *Session) ActivateLink(href string) (Outcome, error) {
	if s.doc == nil {
		return Outcome{}, &book.NavigationError{Href: href}
	}
	href = strings.TrimSpace(href)
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return Outcome{Kind: OutcomeExternal, URL: href}, nil
	}

	ref, fragment := book.SplitFragment(href)
	cur := s.tracker.position()
	if ref == "" {
		return s.anchorJump(href, cur.Unit, fragment)
	}

	target, ok := s.resolveLink(ref)
	if !ok {
		return s.unresolved(href)
	}
	if target == cur.Unit {
		return s.anchorJump(href, target, fragment)
	}

	if s.back == nil {
		if !s.tracker.restoring() {
			s.tracker.observe(s.surface.ScrollFraction())
		}
		saved := s.tracker.position()
		s.back = &saved
	}
	s.logger.Debug("link jump", "href", href, "from", cur.Unit, "unit", target)
	s.show(target)
	if fragment != "" && s.anchorExists(target, fragment) {
		s.tracker.scrollToAnchor(fragment)
	}
	return Outcome{Kind: OutcomeJump, Unit: target, Fragment: fragment}, nil
}

// CanGoBack reports whether GoBack has a position to return to.
func (s *Session) CanGoBack() bool { return s.back != nil }

// GoBack returns to the position held in the back history and clears it.
// It reports whether there was one.
func (s *Session) GoBack() bool {
	if s.back == nil || s.doc == nil {
		return false
	}
	pos := *s.back
	s.back = nil
	s.pending = 0
	s.showAt(pos.Unit, pos.Fraction)
	return true
}

// resolveLink maps ref, relative to the current unit's folder, to a unit.
func (s *Session) resolveLink(ref string) (int, bool) {
	if s.doc.Links == nil {
		return 0, false
	}
	dir := ""
	if u, ok := s.doc.Unit(s.tracker.position().Unit); ok && u.Href != "" {
		dir = path.Dir(u.Href)
	}
	return s.doc.Links.Resolve(dir, ref)
}

func (s *Session) anchorJump(href string, unit int, fragment string) (Outcome, error) {
	if fragment == "" {
		return Outcome{Kind: OutcomeAnchor, Unit: unit}, nil
	}
	if !s.anchorExists(unit, fragment) || !s.surface.ScrollToAnchor(fragment) {
		return s.unresolved(href)
	}
	return Outcome{Kind: OutcomeAnchor, Unit: unit, Fragment: fragment}, nil
}

// anchorExists reports whether the unit's content declares id. Units
// without content are given the benefit of the doubt.
func (s *Session) anchorExists(unit int, id string) bool {
	u, ok := s.doc.Unit(unit)
	if !ok {
		return false
	}
	if u.Content == nil {
		return true
	}
	return epub.HasAnchor(u.Content, id)
}

func (s *Session) unresolved(href string) (Outcome, error) {
	err := &book.NavigationError{Href: href}
	s.logger.Warn("link cannot be resolved", "href", href, "unit", s.tracker.position().Unit)
	s.surface.ShowError(err)
	return Outcome{Kind: OutcomeUnresolved}, err
}
