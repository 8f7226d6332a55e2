package addon

import (
	"github.com/CenterForOpenScience/gravyvalet/pkg/cursor"
)

// ItemType distinguishes the kinds of items a provider can hold.
type ItemType string

// Item types
const (
	ItemTypeFile       ItemType = "FILE"
	ItemTypeFolder     ItemType = "FOLDER"
	ItemTypeCollection ItemType = "COLLECTION"
	ItemTypeDocument   ItemType = "DOCUMENT"
)

// Item describes a single item in a provider's tree.
type Item struct {
	ItemID   string   `json:"item_id"`
	ItemName string   `json:"item_name"`
	ItemType ItemType `json:"item_type"`

	// ItemPath lists ancestors from root to the item itself, when the
	// provider can supply it.
	ItemPath []Item `json:"item_path,omitempty"`

	// ItemLink is a browsable URL for the item, for providers that have one.
	ItemLink string `json:"item_link,omitempty"`

	// CSL carries the citation-style-language record for citation providers.
	CSL map[string]any `json:"csl,omitempty"`
}

// PossibleItem wraps an item lookup that may legitimately find nothing.
type PossibleItem struct {
	PossibleItem *Item `json:"possible_item"`
}

// ItemSample is the uniform page shape for every listing operation: a
// sample of a possibly-large population, addressed by opaque cursors. A nil
// next cursor marks the last page.
type ItemSample struct {
	Items             []Item  `json:"items"`
	TotalCount        *int    `json:"total_count,omitempty"`
	ThisSampleCursor  string  `json:"this_sample_cursor"`
	NextSampleCursor  *string `json:"next_sample_cursor"`
	PrevSampleCursor  *string `json:"prev_sample_cursor"`
	FirstSampleCursor string  `json:"first_sample_cursor"`
}

// WithCursor fills the sample's cursor strings from a Cursor, mapping empty
// next/prev strings to null.
func (s ItemSample) WithCursor(c cursor.Cursor) ItemSample {
	s.ThisSampleCursor = c.This()
	s.NextSampleCursor = optionalCursor(c.Next())
	s.PrevSampleCursor = optionalCursor(c.Prev())
	s.FirstSampleCursor = c.First()
	return s
}

// WithTotalCount sets the sample's population size.
func (s ItemSample) WithTotalCount(total int) ItemSample {
	s.TotalCount = &total
	return s
}

func optionalCursor(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
