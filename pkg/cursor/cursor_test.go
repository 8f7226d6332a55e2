package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetSerialization(t *testing.T) {
	t.Parallel()

	c := Offset{Offset: 20, Limit: 10, TotalCount: 57}
	assert.Equal(t, "20|10", c.This())
}

func TestOffsetRoundTrip(t *testing.T) {
	t.Parallel()

	parsed, err := ParseOffset("20|10", 57)
	require.NoError(t, err)
	assert.Equal(t, Offset{Offset: 20, Limit: 10, TotalCount: 57}, parsed)
	assert.Equal(t, "20|10", parsed.This())

	assert.Equal(t, "30|10", parsed.Next())
	assert.Equal(t, "10|10", parsed.Prev())
	assert.Equal(t, "0|10", parsed.First())
}

func TestOffsetLastPage(t *testing.T) {
	t.Parallel()

	last, err := ParseOffset("50|10", 57)
	require.NoError(t, err)
	assert.Empty(t, last.Next(), "next past total count terminates pagination")
}

func TestOffsetFirstPage(t *testing.T) {
	t.Parallel()

	first, err := ParseOffset("", 57)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Offset)
	assert.Equal(t, DefaultLimit, first.Limit)
	assert.Empty(t, first.Prev())
}

func TestOffsetPrevClampsToZero(t *testing.T) {
	t.Parallel()

	c := Offset{Offset: 5, Limit: 10, TotalCount: 57}
	assert.Equal(t, "0|10", c.Prev())
}

func TestParseOffsetRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"20", "a|10", "20|b", "-1|10", "20|0", "20|-5"} {
		_, err := ParseOffset(raw, 57)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	t.Parallel()

	parsed := ParseMarker("AAAxyz==")
	assert.Equal(t, "AAAxyz==", parsed.This())
	assert.Empty(t, parsed.Prev())
	assert.Empty(t, parsed.First())

	withNext := Marker{ThisMarker: "AAAxyz==", NextMarker: "BBBnext=="}
	assert.Equal(t, "BBBnext==", withNext.Next())

	lastPage := Marker{ThisMarker: "CCClast=="}
	assert.Empty(t, lastPage.Next(), "empty next marker terminates pagination")
}
