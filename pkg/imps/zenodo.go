package imps

import (
	"context"
	"strings"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// zenodoImp is the Zenodo link implementation: it resolves record ids to
// their metadata and browsable URLs but does not browse the repository.
type zenodoImp struct {
	net    *network.Requestor
	webURL string
}

func newZenodo(inst addon.Instantiation) (any, error) {
	return &zenodoImp{
		net:    inst.Network,
		webURL: strings.TrimSuffix(inst.Config.ExternalWebURL, "/"),
	}, nil
}

type zenodoRecord struct {
	Metadata struct {
		Title string `json:"title"`
	} `json:"metadata"`
	Links struct {
		SelfHTML string `json:"self_html"`
	} `json:"links"`
}

// GetItemInfo fetches one published record.
func (z *zenodoImp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	resp, err := z.net.Get(ctx, "records/"+itemID)
	if err != nil {
		return addon.Item{}, err
	}
	if err := checkStatus(resp, "fetching record "+itemID); err != nil {
		return addon.Item{}, err
	}
	var record zenodoRecord
	if err := resp.JSON(&record); err != nil {
		return addon.Item{}, err
	}
	return addon.Item{
		ItemID:   itemID,
		ItemName: record.Metadata.Title,
		ItemType: addon.ItemTypeFile,
		ItemLink: record.Links.SelfHTML,
	}, nil
}

// BuildItemURL resolves a record id to its landing page without a provider
// round trip.
func (z *zenodoImp) BuildItemURL(_ context.Context, itemID string) (addon.RedirectResult, error) {
	if itemID == "" {
		return addon.RedirectResult{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"build_url needs a record id")
	}
	return addon.RedirectResult{URL: z.webURL + "/records/" + itemID}, nil
}
