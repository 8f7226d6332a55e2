// Package imps holds the known provider implementations and their stable
// registration numbers. Numbers identify a provider across deployments and
// renames; they are never reused.
package imps

import (
	"net/http"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// Stable provider numbers.
const (
	NumberBox      = 1001
	NumberDropbox  = 1002
	NumberOwnCloud = 1003
	NumberZotero   = 1010
	NumberBoa      = 1020
	NumberZenodo   = 1030
)

// RegisterAll registers every known provider on the given registry.
func RegisterAll(reg *addon.Registry) {
	reg.MustRegister(addon.Provider{
		Name:      "BOX",
		Number:    NumberBox,
		Interface: addon.StorageInterface,
		New:       newBox,
		Prototype: (*boxImp)(nil),
	})
	reg.MustRegister(addon.Provider{
		Name:      "DROPBOX",
		Number:    NumberDropbox,
		Interface: addon.StorageInterface,
		New:       newDropbox,
		Prototype: (*dropboxImp)(nil),
	})
	reg.MustRegister(addon.Provider{
		Name:      "OWNCLOUD",
		Number:    NumberOwnCloud,
		Interface: addon.StorageInterface,
		New:       newOwnCloud,
		Prototype: (*owncloudImp)(nil),
	})
	reg.MustRegister(addon.Provider{
		Name:      "ZOTERO",
		Number:    NumberZotero,
		Interface: addon.CitationInterface,
		New:       newZotero,
		Prototype: (*zoteroImp)(nil),
	})
	reg.MustRegister(addon.Provider{
		Name:      "BOA",
		Number:    NumberBoa,
		Interface: addon.ComputingInterface,
		New:       newBoa,
		Prototype: (*boaImp)(nil),
	})
	reg.MustRegister(addon.Provider{
		Name:      "ZENODO",
		Number:    NumberZenodo,
		Interface: addon.LinkInterface,
		New:       newZenodo,
		Prototype: (*zenodoImp)(nil),
	})
}

// checkStatus classifies a non-2xx provider response and releases its body.
// The caller proceeds to read the body only on a nil return.
func checkStatus(resp *network.Response, what string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	resp.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return gverrors.NotFound(what)
	case http.StatusUnauthorized, http.StatusForbidden:
		return gverrors.CredentialError(what, nil)
	default:
		return gverrors.ProviderError(resp.StatusCode, what)
	}
}
