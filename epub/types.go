package epub

// spineItem is an OPF <itemref> resolved against the manifest.
type spineItem struct {
	// ID is the manifest item ID referenced by this spine entry.
	ID string

	// Href is the content file path relative to the OPF file location.
	Href string

	// MediaType is the MIME type of the referenced content file.
	MediaType string

	// Linear is false for items marked linear="no". Non-linear items are
	// still part of the unit sequence.
	Linear bool
}

// manifestItem represents an entry in the OPF <manifest> element.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}
