package imps

import (
	"context"
	"strconv"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/cursor"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// zoteroImp is the Zotero citation implementation. Zotero's OAuth1a
// handshake hands back a permanent API key as the token, sent on every
// request in the Zotero-API-Key header. Pagination is start/limit with the
// population size in the Total-Results response header.
type zoteroImp struct {
	net    *network.Requestor
	apiKey string
	userID string
}

func newZotero(inst addon.Instantiation) (any, error) {
	creds, ok := inst.Credentials.(credentials.OAuth1)
	if !ok {
		return nil, gverrors.InvalidCredentials("zotero requires oauth1 credentials")
	}
	return &zoteroImp{
		net:    inst.Network,
		apiKey: creds.Token,
		userID: inst.Config.ExternalAccountID,
	}, nil
}

type zoteroCollection struct {
	Key  string `json:"key"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

type zoteroItem struct {
	Key string         `json:"key"`
	CSL map[string]any `json:"csljson"`
}

func (c zoteroCollection) item() addon.Item {
	return addon.Item{ItemID: c.Key, ItemName: c.Data.Name, ItemType: addon.ItemTypeCollection}
}

func (i zoteroItem) item() addon.Item {
	name, _ := i.CSL["title"].(string)
	return addon.Item{ItemID: i.Key, ItemName: name, ItemType: addon.ItemTypeDocument, CSL: i.CSL}
}

func (z *zoteroImp) get(ctx context.Context, relativePath string, cur cursor.Offset, extra ...network.RequestOption) (*network.Response, error) {
	opts := append([]network.RequestOption{
		network.WithHeader("Zotero-API-Key", z.apiKey),
		network.WithQueryParam("start", strconv.Itoa(cur.Offset)),
		network.WithQueryParam("limit", strconv.Itoa(cur.Limit)),
	}, extra...)
	resp, err := z.net.Get(ctx, relativePath, opts...)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, relativePath); err != nil {
		return nil, err
	}
	return resp, nil
}

// totalResults reads Zotero's population header, falling back to the page
// size when the header is absent or malformed.
func totalResults(resp *network.Response, pageLen int) int {
	total, err := strconv.Atoi(resp.Header.Get("Total-Results"))
	if err != nil || total < 0 {
		return pageLen
	}
	return total
}

// GetItemInfo fetches one library item with its CSL record.
func (z *zoteroImp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	relativePath := "users/" + z.userID + "/items/" + itemID
	resp, err := z.net.Get(ctx, relativePath,
		network.WithHeader("Zotero-API-Key", z.apiKey),
		network.WithQueryParam("include", "csljson"))
	if err != nil {
		return addon.Item{}, err
	}
	if err := checkStatus(resp, relativePath); err != nil {
		return addon.Item{}, err
	}
	var item zoteroItem
	if err := resp.JSON(&item); err != nil {
		return addon.Item{}, err
	}
	return item.item(), nil
}

// ListRootCollections lists the library's top-level collections.
func (z *zoteroImp) ListRootCollections(ctx context.Context, pageCursor string) (addon.ItemSample, error) {
	cur, err := cursor.ParseOffset(pageCursor, 0)
	if err != nil {
		return addon.ItemSample{}, err
	}
	resp, err := z.get(ctx, "users/"+z.userID+"/collections/top", cur)
	if err != nil {
		return addon.ItemSample{}, err
	}
	total := totalResults(resp, 0)
	var collections []zoteroCollection
	if err := resp.JSON(&collections); err != nil {
		return addon.ItemSample{}, err
	}
	cur.TotalCount = total

	items := make([]addon.Item, 0, len(collections))
	for _, collection := range collections {
		items = append(items, collection.item())
	}
	return addon.ItemSample{Items: items}.WithTotalCount(total).WithCursor(cur), nil
}

// ListCollectionItems lists a collection's subcollections or documents,
// defaulting to documents.
func (z *zoteroImp) ListCollectionItems(ctx context.Context, collectionID, pageCursor string, itemType *addon.ItemType) (addon.ItemSample, error) {
	cur, err := cursor.ParseOffset(pageCursor, 0)
	if err != nil {
		return addon.ItemSample{}, err
	}

	if itemType != nil && *itemType == addon.ItemTypeCollection {
		resp, err := z.get(ctx, "users/"+z.userID+"/collections/"+collectionID+"/collections", cur)
		if err != nil {
			return addon.ItemSample{}, err
		}
		total := totalResults(resp, 0)
		var collections []zoteroCollection
		if err := resp.JSON(&collections); err != nil {
			return addon.ItemSample{}, err
		}
		cur.TotalCount = total
		items := make([]addon.Item, 0, len(collections))
		for _, collection := range collections {
			items = append(items, collection.item())
		}
		return addon.ItemSample{Items: items}.WithTotalCount(total).WithCursor(cur), nil
	}

	resp, err := z.get(ctx, "users/"+z.userID+"/collections/"+collectionID+"/items/top", cur,
		network.WithQueryParam("include", "csljson"))
	if err != nil {
		return addon.ItemSample{}, err
	}
	total := totalResults(resp, 0)
	var documents []zoteroItem
	if err := resp.JSON(&documents); err != nil {
		return addon.ItemSample{}, err
	}
	cur.TotalCount = total
	items := make([]addon.Item, 0, len(documents))
	for _, document := range documents {
		items = append(items, document.item())
	}
	return addon.ItemSample{Items: items}.WithTotalCount(total).WithCursor(cur), nil
}
