// Package addon declares the operation surface of every addon interface
// (storage, citation, computing, link) and the registry that maps provider
// implementations onto it.
package addon

import (
	"strings"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// Capabilities is a bitset of coarse permission tags. Each operation carries
// exactly one; accounts and configured addons carry sets.
type Capabilities uint8

// Capability bits
const (
	CapabilityAccess Capabilities = 1 << iota
	CapabilityUpdate
	CapabilityWebhook
)

var capabilityNames = []struct {
	bit  Capabilities
	name string
}{
	{CapabilityAccess, "ACCESS"},
	{CapabilityUpdate, "UPDATE"},
	{CapabilityWebhook, "WEBHOOK"},
}

// Contains reports whether every bit of other is present in c.
func (c Capabilities) Contains(other Capabilities) bool {
	return c&other == other
}

// SubsetOf reports whether every bit of c is present in other.
func (c Capabilities) SubsetOf(other Capabilities) bool {
	return other.Contains(c)
}

// Names renders the set as its capability names, declaration order.
func (c Capabilities) Names() []string {
	var names []string
	for _, entry := range capabilityNames {
		if c.Contains(entry.bit) {
			names = append(names, entry.name)
		}
	}
	return names
}

// String renders the set as "ACCESS|UPDATE" style.
func (c Capabilities) String() string {
	return strings.Join(c.Names(), "|")
}

// ParseCapabilities resolves capability names into a bitset.
func ParseCapabilities(names []string) (Capabilities, error) {
	var set Capabilities
	for _, raw := range names {
		matched := false
		for _, entry := range capabilityNames {
			if strings.EqualFold(raw, entry.name) {
				set |= entry.bit
				matched = true
				break
			}
		}
		if !matched {
			return 0, gverrors.Newf(gverrors.KindInvalidArguments, "unknown capability %q", raw)
		}
	}
	return set, nil
}
