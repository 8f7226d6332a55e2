package addon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

func TestCapabilitiesSubset(t *testing.T) {
	t.Parallel()

	full := CapabilityAccess | CapabilityUpdate | CapabilityWebhook
	readOnly := CapabilityAccess

	assert.True(t, readOnly.SubsetOf(full))
	assert.False(t, full.SubsetOf(readOnly))
	assert.True(t, Capabilities(0).SubsetOf(readOnly), "empty set is a subset of anything")
	assert.True(t, full.Contains(CapabilityUpdate))
	assert.False(t, readOnly.Contains(CapabilityUpdate))
}

func TestCapabilitiesString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ACCESS|UPDATE", (CapabilityAccess | CapabilityUpdate).String())
	assert.Equal(t, "WEBHOOK", CapabilityWebhook.String())
	assert.Empty(t, Capabilities(0).String())
}

func TestParseCapabilities(t *testing.T) {
	t.Parallel()

	parsed, err := ParseCapabilities([]string{"access", "UPDATE"})
	require.NoError(t, err)
	assert.Equal(t, CapabilityAccess|CapabilityUpdate, parsed)

	_, err = ParseCapabilities([]string{"ACCESS", "TELEPORT"})
	require.Error(t, err)
	assert.Equal(t, gverrors.KindInvalidArguments, gverrors.KindOf(err))
}
