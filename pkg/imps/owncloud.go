package imps

import (
	"context"
	"encoding/xml"
	"net/url"
	"path"
	"strings"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/addon/network"
	"github.com/CenterForOpenScience/gravyvalet/pkg/cursor"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// owncloudImp is the OwnCloud storage implementation, speaking WebDAV.
// PROPFIND has no server-side pagination, so listings fetch the whole
// folder and slice it with an offset cursor locally.
type owncloudImp struct {
	net *network.Requestor
}

func newOwnCloud(inst addon.Instantiation) (any, error) {
	return &owncloudImp{net: inst.Network}, nil
}

type davMultistatus struct {
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string        `xml:"href"`
	Propstats []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	DisplayName  string `xml:"displayname"`
	ResourceType struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
}

// item converts one multistatus response into an item. The item id is the
// href path relative to the requestor's WebDAV prefix, so it can be fed
// straight back into the next PROPFIND.
func (r davResponse) item(prefixPath string) addon.Item {
	itemType := addon.ItemTypeFile
	name := ""
	for _, propstat := range r.Propstats {
		if !strings.Contains(propstat.Status, "200") {
			continue
		}
		name = propstat.Prop.DisplayName
		if propstat.Prop.ResourceType.Collection != nil {
			itemType = addon.ItemTypeFolder
		}
	}

	href := r.Href
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	itemID := strings.TrimPrefix(href, prefixPath)
	itemID = strings.TrimPrefix(itemID, "/")
	if name == "" {
		name = path.Base(strings.TrimSuffix(href, "/"))
	}
	return addon.Item{ItemID: itemID, ItemName: name, ItemType: itemType}
}

// prefixPath returns the path portion of the pinned WebDAV base URL, used to
// relativize hrefs.
func (o *owncloudImp) prefixPath() string {
	parsed, err := url.Parse(o.net.PrefixURL())
	if err != nil {
		return ""
	}
	return parsed.Path
}

func (o *owncloudImp) propfind(ctx context.Context, itemID, depth string) (davMultistatus, error) {
	resp, err := o.net.Propfind(ctx, itemID, network.WithHeader("Depth", depth))
	if err != nil {
		return davMultistatus{}, err
	}
	if err := checkStatus(resp, "listing "+itemID); err != nil {
		return davMultistatus{}, err
	}
	body, err := resp.Text()
	if err != nil {
		return davMultistatus{}, err
	}
	var status davMultistatus
	if err := xml.Unmarshal([]byte(body), &status); err != nil {
		return davMultistatus{}, gverrors.New(gverrors.KindUnexpectedAddonError,
			"decoding multistatus response", err)
	}
	return status, nil
}

// GetItemInfo fetches one item's properties with a depth-0 PROPFIND.
func (o *owncloudImp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	status, err := o.propfind(ctx, itemID, "0")
	if err != nil {
		return addon.Item{}, err
	}
	if len(status.Responses) == 0 {
		return addon.Item{}, gverrors.NotFound("no such item " + itemID)
	}
	return status.Responses[0].item(o.prefixPath()), nil
}

// ListRootItems lists the WebDAV root folder.
func (o *owncloudImp) ListRootItems(ctx context.Context, pageCursor string) (addon.ItemSample, error) {
	return o.ListChildItems(ctx, "", pageCursor, nil)
}

// ListChildItems runs a depth-1 PROPFIND and pages the result locally. The
// first multistatus response describes the folder itself and is dropped.
func (o *owncloudImp) ListChildItems(ctx context.Context, itemID, pageCursor string, itemType *addon.ItemType) (addon.ItemSample, error) {
	status, err := o.propfind(ctx, itemID, "1")
	if err != nil {
		return addon.ItemSample{}, err
	}

	prefix := o.prefixPath()
	children := make([]addon.Item, 0, len(status.Responses))
	for i, response := range status.Responses {
		if i == 0 {
			continue
		}
		item := response.item(prefix)
		if itemType != nil && item.ItemType != *itemType {
			continue
		}
		children = append(children, item)
	}

	cur, err := cursor.ParseOffset(pageCursor, len(children))
	if err != nil {
		return addon.ItemSample{}, err
	}
	start := cur.Offset
	if start > len(children) {
		start = len(children)
	}
	end := start + cur.Limit
	if end > len(children) {
		end = len(children)
	}
	return addon.ItemSample{Items: children[start:end]}.
		WithTotalCount(len(children)).
		WithCursor(cur), nil
}
