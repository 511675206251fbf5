package reader

import (
	"errors"
	"testing"
	"time"

	"github.com/simp-lee/reader/book"
	"github.com/simp-lee/reader/store"
)

func openFiveUnits(t *testing.T) *testSession {
	t.Helper()
	ts := newTestSession(t)
	ts.open(t, writeTestEPub(t, 5, true))
	return ts
}

func TestActivateLink_ResolvesKeyForms(t *testing.T) {
	tests := []string{"u0.xhtml", "text/u0.xhtml", "u0", "../text/u0.xhtml", "u0.xhtml#top"}
	for _, href := range tests {
		t.Run(href, func(t *testing.T) {
			ts := openFiveUnits(t)
			ts.GoTo(1)

			out, err := ts.ActivateLink(href)
			if err != nil {
				t.Fatalf("ActivateLink(%q) error = %v", href, err)
			}
			if out.Kind != OutcomeJump || out.Unit != 0 {
				t.Errorf("ActivateLink(%q) = %+v, want jump to unit 0", href, out)
			}
			if ts.Position().Unit != 0 || ts.surface.lastUnit() != 0 {
				t.Errorf("position = %+v, surface shows %d", ts.Position(), ts.surface.lastUnit())
			}
		})
	}
}

func TestActivateLink_Unresolved(t *testing.T) {
	ts := openFiveUnits(t)
	ts.GoTo(2)
	shown := len(ts.surface.units)

	out, err := ts.ActivateLink("missing.xhtml")
	var nerr *book.NavigationError
	if !errors.As(err, &nerr) || nerr.Href != "missing.xhtml" {
		t.Fatalf("ActivateLink(missing) error = %v, want NavigationError", err)
	}
	if !errors.Is(err, book.ErrNavigation) {
		t.Error("error does not match book.ErrNavigation")
	}
	if out.Kind != OutcomeUnresolved {
		t.Errorf("Kind = %v, want unresolved", out.Kind)
	}
	if ts.Position().Unit != 2 || len(ts.surface.units) != shown || ts.CanGoBack() {
		t.Error("unresolved link changed state")
	}
	if len(ts.surface.errs) != 1 {
		t.Errorf("surface errors = %v, want one warning", ts.surface.errs)
	}
}

func TestActivateLink_InUnitAnchor(t *testing.T) {
	ts := openFiveUnits(t)

	for _, href := range []string{"#note", "u0.xhtml#note"} {
		out, err := ts.ActivateLink(href)
		if err != nil || out.Kind != OutcomeAnchor || out.Fragment != "note" {
			t.Errorf("ActivateLink(%q) = (%+v, %v), want anchor jump", href, out, err)
		}
	}
	if len(ts.surface.anchors) != 2 {
		t.Errorf("anchor scrolls = %v, want 2", ts.surface.anchors)
	}
	if ts.CanGoBack() || len(ts.surface.units) != 1 {
		t.Error("in-unit anchor changed unit or history")
	}

	if _, err := ts.ActivateLink("#nowhere"); !errors.Is(err, book.ErrNavigation) {
		t.Errorf("ActivateLink(#nowhere) error = %v, want ErrNavigation", err)
	}
}

func TestActivateLink_CrossUnitFragment(t *testing.T) {
	ts := openFiveUnits(t)

	out, err := ts.ActivateLink("u3.xhtml#note")
	if err != nil || out.Kind != OutcomeJump || out.Unit != 3 {
		t.Fatalf("ActivateLink() = (%+v, %v)", out, err)
	}
	if len(ts.surface.anchors) != 0 {
		t.Error("anchor scrolled before the unit was ready")
	}
	ts.m.Advance(time.Second)
	if len(ts.surface.anchors) != 1 || ts.surface.anchors[0] != "note" {
		t.Errorf("anchor scrolls = %v, want [note]", ts.surface.anchors)
	}
}

func TestActivateLink_External(t *testing.T) {
	ts := openFiveUnits(t)
	out, err := ts.ActivateLink("https://example.com/page")
	if err != nil || out.Kind != OutcomeExternal || out.URL != "https://example.com/page" {
		t.Errorf("ActivateLink(external) = (%+v, %v)", out, err)
	}
	if ts.CanGoBack() || ts.Position().Unit != 0 {
		t.Error("external link changed state")
	}
}

func TestBackHistory_ChainKeepsFirstOrigin(t *testing.T) {
	ts := openFiveUnits(t)
	ts.surface.fraction = 0.3
	ts.OnScroll(0.3)

	if _, err := ts.ActivateLink("u2.xhtml"); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.ActivateLink("u4.xhtml"); err != nil {
		t.Fatal(err)
	}
	if !ts.CanGoBack() || *ts.back != (ReadingPosition{Unit: 0, Fraction: 0.3}) {
		t.Fatalf("back slot = %+v, want {0 0.3}", ts.back)
	}

	if !ts.GoBack() {
		t.Fatal("GoBack() = false")
	}
	if ts.CanGoBack() {
		t.Error("back slot not cleared by GoBack")
	}
	ts.m.Advance(time.Second)
	if got := ts.Position(); got != (ReadingPosition{Unit: 0, Fraction: 0.3}) {
		t.Errorf("position after GoBack = %+v, want {0 0.3}", got)
	}
	if ts.GoBack() {
		t.Error("second GoBack() = true")
	}
}

func TestBackHistory_CapturesSurfaceScroll(t *testing.T) {
	ts := openFiveUnits(t)
	ts.OnScroll(0.2)
	// Scrolled further without a settled scroll report.
	ts.surface.fraction = 0.65

	if _, err := ts.ActivateLink("u3.xhtml"); err != nil {
		t.Fatal(err)
	}
	if ts.back == nil || *ts.back != (ReadingPosition{Unit: 0, Fraction: 0.65}) {
		t.Errorf("back slot = %+v, want {0 0.65}", ts.back)
	}
}

func TestBackHistory_ManualTurnClears(t *testing.T) {
	ts := openFiveUnits(t)

	ts.ActivateLink("u2.xhtml")
	if !ts.CanGoBack() {
		t.Fatal("first jump did not fill the back slot")
	}
	if !ts.Next() {
		t.Fatal("Next() = false")
	}
	if ts.CanGoBack() {
		t.Error("manual turn did not clear the back slot")
	}

	ts.ActivateLink("u4.xhtml")
	if ts.back == nil || ts.back.Unit != 3 {
		t.Errorf("back slot = %+v, want unit 3", ts.back)
	}
}

func TestBackHistory_ManualNavigationClears(t *testing.T) {
	tests := map[string]func(ts *testSession){
		"GoTo":         func(ts *testSession) { ts.GoTo(1) },
		"GoTo same":    func(ts *testSession) { ts.GoTo(2) },
		"Prev":         func(ts *testSession) { ts.Prev() },
		"Next":         func(ts *testSession) { ts.Next() },
		"GoToBookmark": func(ts *testSession) { ts.GoToBookmark(store.Bookmark{BookID: ts.bookID, Unit: 4}) },
		"TOC entry": func(ts *testSession) {
			toc := ts.Document().TOC()
			ts.GoTo(toc[len(toc)-1].UnitIndex)
		},
	}
	for name, navigate := range tests {
		t.Run(name, func(t *testing.T) {
			ts := openFiveUnits(t)
			if _, err := ts.ActivateLink("u2.xhtml"); err != nil || !ts.CanGoBack() {
				t.Fatalf("link jump did not fill the back slot (err = %v)", err)
			}
			navigate(ts)
			if ts.CanGoBack() {
				t.Errorf("%s did not clear the back slot", name)
			}
		})
	}
}

func TestGoToBookmark(t *testing.T) {
	ts := openFiveUnits(t)

	if err := ts.GoToBookmark(store.Bookmark{BookID: ts.bookID, Unit: 3}); err != nil {
		t.Fatalf("GoToBookmark() = %v", err)
	}
	if ts.Position().Unit != 3 {
		t.Errorf("Position().Unit = %d, want 3", ts.Position().Unit)
	}

	err := ts.GoToBookmark(store.Bookmark{BookID: "/elsewhere/other.epub", Unit: 1})
	if !errors.Is(err, book.ErrNavigation) {
		t.Errorf("GoToBookmark(other book) = %v, want ErrNavigation", err)
	}
	if ts.Position().Unit != 3 {
		t.Error("bookmark from another book changed the position")
	}
}

func TestOutcomeKindString(t *testing.T) {
	tests := map[OutcomeKind]string{
		OutcomeUnresolved: "unresolved",
		OutcomeAnchor:     "anchor",
		OutcomeJump:       "jump",
		OutcomeExternal:   "external",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}
