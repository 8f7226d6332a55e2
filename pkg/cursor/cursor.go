// Package cursor implements the opaque pagination cursors shared by all
// addon implementations: offset-based and marker-based, both serializing
// to and from plain strings.
package cursor

import (
	"fmt"
	"strconv"
	"strings"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// Cursor is the sum type over the two supported pagination families.
// Implementations convert provider-native pagination into one of these; the
// engine only ever sees the serialized strings.
type Cursor interface {
	// This serializes the cursor for the current page.
	This() string

	// Next returns the cursor string for the following page, or "" on the
	// last page (the canonical terminator).
	Next() string

	// Prev returns the cursor string for the preceding page, or "".
	Prev() string

	// First returns the cursor string for the first page.
	First() string
}

// Offset paginates by numeric offset and page size.
type Offset struct {
	Offset     int
	Limit      int
	TotalCount int
}

// DefaultLimit is the page size used when a provider does not dictate one.
const DefaultLimit = 20

// ParseOffset parses a "<offset>|<limit>" cursor string. The total count is
// supplied by the caller, since it comes from the provider's response rather
// than the cursor itself. An empty string means the first page.
func ParseOffset(raw string, totalCount int) (Offset, error) {
	if raw == "" {
		return Offset{Offset: 0, Limit: DefaultLimit, TotalCount: totalCount}, nil
	}
	offsetStr, limitStr, ok := strings.Cut(raw, "|")
	if !ok {
		return Offset{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"malformed offset cursor %q", raw)
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		return Offset{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"malformed offset in cursor %q", raw)
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return Offset{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"malformed limit in cursor %q", raw)
	}
	return Offset{Offset: offset, Limit: limit, TotalCount: totalCount}, nil
}

// This implements Cursor, serializing as "<offset>|<limit>".
func (c Offset) This() string {
	return fmt.Sprintf("%d|%d", c.Offset, c.Limit)
}

// Next implements Cursor; "" once the next offset reaches the total count.
func (c Offset) Next() string {
	next := c.Offset + c.Limit
	if next >= c.TotalCount {
		return ""
	}
	return Offset{Offset: next, Limit: c.Limit, TotalCount: c.TotalCount}.This()
}

// Prev implements Cursor; "" before the first page.
func (c Offset) Prev() string {
	if c.Offset == 0 {
		return ""
	}
	prev := c.Offset - c.Limit
	if prev < 0 {
		prev = 0
	}
	return Offset{Offset: prev, Limit: c.Limit, TotalCount: c.TotalCount}.This()
}

// First implements Cursor.
func (c Offset) First() string {
	return Offset{Offset: 0, Limit: c.Limit, TotalCount: c.TotalCount}.This()
}

// Marker paginates by a provider-supplied opaque marker, serialized
// verbatim. Providers that only walk forward have no prev cursor.
type Marker struct {
	// ThisMarker is the marker identifying the current page ("" = first).
	ThisMarker string

	// NextMarker is the provider's continuation marker, "" on the last page.
	NextMarker string
}

// ParseMarker wraps a raw marker string.
func ParseMarker(raw string) Marker {
	return Marker{ThisMarker: raw}
}

// This implements Cursor.
func (c Marker) This() string { return c.ThisMarker }

// Next implements Cursor.
func (c Marker) Next() string { return c.NextMarker }

// Prev implements Cursor. Marker paginations cannot walk backwards.
func (Marker) Prev() string { return "" }

// First implements Cursor. The empty marker addresses the first page.
func (Marker) First() string { return "" }
