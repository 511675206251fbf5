// Package reader runs a reading session over an ePub or PDF document.
//
// A [Session] opens one document at a time, shows its units on a [Surface]
// and keeps track of the [ReadingPosition]: the unit being read and the
// scroll fraction within it. Positions are saved through a [PositionStore]
// on manual page changes, once scrolling settles, and when the reader
// leaves.
//
// Surfaces lay content out asynchronously, so a saved scroll fraction cannot
// simply be applied when a unit is shown. The session instead retries on a
// [RestorePolicy] schedule until the content is ready and the fraction
// verifiably sticks, or gives up after a bounded number of attempts. Every
// display bumps a generation counter and callbacks from older displays are
// ignored.
//
// Links inside structured content are followed with [Session.ActivateLink].
// The first jump of a chain remembers where it started so [Session.GoBack]
// can return there; any manual navigation forgets it.
//
// Raster pages are rendered by a [pdfpage.Pipeline] that caches recent
// pages and preloads the next one.
//
// A Session is not safe for concurrent use. It is driven from a single
// goroutine, the one running its [loop.Dispatcher]:
//
//	l := loop.New(logger)
//	defer l.Close()
//	var s *reader.Session
//	l.Do(func() {
//	    s = reader.New(l, view, reader.WithPositionStore(db))
//	    s.Open("book.epub")
//	})
package reader
