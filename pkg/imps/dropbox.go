package imps

import (
	"context"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/cursor"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// dropboxImp is the Dropbox storage implementation. Dropbox paginates with
// opaque continuation cursors, so listings use marker cursors and cannot
// walk backwards.
type dropboxImp struct {
	net *network.Requestor
}

func newDropbox(inst addon.Instantiation) (any, error) {
	return &dropboxImp{net: inst.Network}, nil
}

type dropboxEntry struct {
	Tag         string `json:".tag"`
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
}

type dropboxPage struct {
	Entries []dropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

// item uses the display path as the item id so that one value addresses the
// entry in every metadata endpoint.
func (e dropboxEntry) item() addon.Item {
	itemType := addon.ItemTypeFile
	if e.Tag == "folder" {
		itemType = addon.ItemTypeFolder
	}
	return addon.Item{ItemID: e.PathDisplay, ItemName: e.Name, ItemType: itemType}
}

// GetItemInfo fetches metadata for one path. The Dropbox root has no
// metadata endpoint, so the empty path answers directly.
func (d *dropboxImp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	if itemID == "" || itemID == "/" {
		return addon.Item{ItemID: "", ItemName: "/", ItemType: addon.ItemTypeFolder}, nil
	}
	resp, err := d.net.Post(ctx, "files/get_metadata",
		network.WithJSONBody(map[string]string{"path": itemID}))
	if err != nil {
		return addon.Item{}, err
	}
	if err := checkStatus(resp, "fetching metadata for "+itemID); err != nil {
		return addon.Item{}, err
	}
	var entry dropboxEntry
	if err := resp.JSON(&entry); err != nil {
		return addon.Item{}, err
	}
	return entry.item(), nil
}

// ListRootItems lists the Dropbox root folder.
func (d *dropboxImp) ListRootItems(ctx context.Context, pageCursor string) (addon.ItemSample, error) {
	return d.ListChildItems(ctx, "", pageCursor, nil)
}

// ListChildItems starts a folder listing or continues one, depending on
// whether the cursor carries a Dropbox continuation marker.
func (d *dropboxImp) ListChildItems(ctx context.Context, itemID, pageCursor string, itemType *addon.ItemType) (addon.ItemSample, error) {
	cur := cursor.ParseMarker(pageCursor)

	var (
		resp *network.Response
		err  error
	)
	if cur.ThisMarker == "" {
		resp, err = d.net.Post(ctx, "files/list_folder",
			network.WithJSONBody(map[string]any{"path": itemID, "limit": cursor.DefaultLimit}))
	} else {
		resp, err = d.net.Post(ctx, "files/list_folder/continue",
			network.WithJSONBody(map[string]string{"cursor": cur.ThisMarker}))
	}
	if err != nil {
		return addon.ItemSample{}, err
	}
	if err := checkStatus(resp, "listing folder "+itemID); err != nil {
		return addon.ItemSample{}, err
	}
	var page dropboxPage
	if err := resp.JSON(&page); err != nil {
		return addon.ItemSample{}, err
	}
	if page.HasMore {
		cur.NextMarker = page.Cursor
	}

	items := make([]addon.Item, 0, len(page.Entries))
	for _, entry := range page.Entries {
		item := entry.item()
		if itemType != nil && item.ItemType != *itemType {
			continue
		}
		items = append(items, item)
	}
	return addon.ItemSample{Items: items}.WithCursor(cur), nil
}

// DownloadURL asks Dropbox for a short-lived direct link.
func (d *dropboxImp) DownloadURL(ctx context.Context, itemID string) (addon.RedirectResult, error) {
	if itemID == "" {
		return addon.RedirectResult{}, gverrors.Newf(gverrors.KindInvalidArguments,
			"download needs a file path")
	}
	resp, err := d.net.Post(ctx, "files/get_temporary_link",
		network.WithJSONBody(map[string]string{"path": itemID}))
	if err != nil {
		return addon.RedirectResult{}, err
	}
	if err := checkStatus(resp, "fetching download link for "+itemID); err != nil {
		return addon.RedirectResult{}, err
	}
	var link struct {
		Link string `json:"link"`
	}
	if err := resp.JSON(&link); err != nil {
		return addon.RedirectResult{}, err
	}
	return addon.RedirectResult{URL: link.Link}, nil
}

// ResolveAccountID asks Dropbox who owns the credentials.
func (d *dropboxImp) ResolveAccountID(ctx context.Context, net *network.Requestor) (string, error) {
	resp, err := net.Post(ctx, "users/get_current_account")
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp, "fetching account identity"); err != nil {
		return "", err
	}
	var account struct {
		AccountID string `json:"account_id"`
	}
	if err := resp.JSON(&account); err != nil {
		return "", err
	}
	return account.AccountID, nil
}
