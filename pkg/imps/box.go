package imps

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/cursor"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// boxRootID addresses the account root folder in the Box API.
const boxRootID = "0"

// boxImp is the Box storage implementation. Pagination is offset-based,
// driven by the total_count the Box API returns with every folder listing.
type boxImp struct {
	net *network.Requestor
}

func newBox(inst addon.Instantiation) (any, error) {
	return &boxImp{net: inst.Network}, nil
}

type boxEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type boxItemsPage struct {
	TotalCount int        `json:"total_count"`
	Entries    []boxEntry `json:"entries"`
}

func (e boxEntry) item() addon.Item {
	itemType := addon.ItemTypeFile
	if e.Type == "folder" {
		itemType = addon.ItemTypeFolder
	}
	return addon.Item{ItemID: e.ID, ItemName: e.Name, ItemType: itemType}
}

// GetItemInfo looks the item up as a folder first, then as a file. Box keeps
// the two namespaces separate but gravyvalet addresses both with one id.
func (b *boxImp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	if itemID == "" {
		itemID = boxRootID
	}
	entry, err := b.fetchEntry(ctx, "folders/"+itemID)
	if gverrors.KindOf(err) == gverrors.KindNotFound {
		entry, err = b.fetchEntry(ctx, "files/"+itemID)
	}
	if err != nil {
		return addon.Item{}, err
	}
	return entry.item(), nil
}

func (b *boxImp) fetchEntry(ctx context.Context, path string) (boxEntry, error) {
	resp, err := b.net.Get(ctx, path,
		network.WithQueryParam("fields", "id,type,name"))
	if err != nil {
		return boxEntry{}, err
	}
	if err := checkStatus(resp, path); err != nil {
		return boxEntry{}, err
	}
	var entry boxEntry
	if err := resp.JSON(&entry); err != nil {
		return boxEntry{}, err
	}
	return entry, nil
}

// ListRootItems lists the account root folder.
func (b *boxImp) ListRootItems(ctx context.Context, pageCursor string) (addon.ItemSample, error) {
	return b.ListChildItems(ctx, boxRootID, pageCursor, nil)
}

// ListChildItems pages through a folder with the Box offset/limit protocol.
func (b *boxImp) ListChildItems(ctx context.Context, itemID, pageCursor string, itemType *addon.ItemType) (addon.ItemSample, error) {
	if itemID == "" {
		itemID = boxRootID
	}
	cur, err := cursor.ParseOffset(pageCursor, 0)
	if err != nil {
		return addon.ItemSample{}, err
	}

	resp, err := b.net.Get(ctx, "folders/"+itemID+"/items",
		network.WithQueryParam("offset", strconv.Itoa(cur.Offset)),
		network.WithQueryParam("limit", strconv.Itoa(cur.Limit)),
		network.WithQueryParam("fields", "id,type,name"))
	if err != nil {
		return addon.ItemSample{}, err
	}
	if err := checkStatus(resp, "listing folder "+itemID); err != nil {
		return addon.ItemSample{}, err
	}
	var page boxItemsPage
	if err := resp.JSON(&page); err != nil {
		return addon.ItemSample{}, err
	}
	cur.TotalCount = page.TotalCount

	items := make([]addon.Item, 0, len(page.Entries))
	for _, entry := range page.Entries {
		item := entry.item()
		if itemType != nil && item.ItemType != *itemType {
			continue
		}
		items = append(items, item)
	}
	return addon.ItemSample{Items: items}.
		WithTotalCount(page.TotalCount).
		WithCursor(cur), nil
}

// DownloadURL points at the Box content endpoint; the caller follows the
// redirect with its own credentials.
func (b *boxImp) DownloadURL(_ context.Context, itemID string) (addon.RedirectResult, error) {
	if itemID == "" {
		return addon.RedirectResult{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"download needs a file id")
	}
	return addon.RedirectResult{
		URL: fmt.Sprintf("%sfiles/%s/content", b.net.PrefixURL(), itemID),
	}, nil
}

// ResolveAccountID asks Box who owns the credentials.
func (b *boxImp) ResolveAccountID(ctx context.Context, net *network.Requestor) (string, error) {
	resp, err := net.Get(ctx, "users/me", network.WithQueryParam("fields", "id"))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Close()
		return "", gverrors.ProviderError(resp.StatusCode, "fetching account identity")
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := resp.JSON(&user); err != nil {
		return "", err
	}
	return user.ID, nil
}
