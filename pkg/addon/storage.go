package addon

import (
	"context"
)

// Optional operation interfaces for storage implementations. A provider
// implements an operation by satisfying its interface; the registry probes
// these structurally.

// ItemInfoGetter looks up a single item by id. Shared by the storage,
// citation, and link interfaces, which all declare get_item_info.
type ItemInfoGetter interface {
	GetItemInfo(ctx context.Context, itemID string) (Item, error)
}

// RootItemLister pages through the items at the account root.
type RootItemLister interface {
	ListRootItems(ctx context.Context, pageCursor string) (ItemSample, error)
}

// ChildItemLister pages through the children of one item. An empty itemID
// addresses the root of the account. itemType, when non-nil, filters the
// listing to one item type.
type ChildItemLister interface {
	ListChildItems(ctx context.Context, itemID, pageCursor string, itemType *ItemType) (ItemSample, error)
}

// ItemDownloader builds a short-lived URL the caller may 302 to for the
// item's content.
type ItemDownloader interface {
	DownloadURL(ctx context.Context, itemID string) (RedirectResult, error)
}

type itemInfoArgs struct {
	ItemID string `json:"item_id"`
}

type listRootArgs struct {
	PageCursor string `json:"page_cursor"`
}

type listChildArgs struct {
	ItemID     string    `json:"item_id"`
	PageCursor string    `json:"page_cursor"`
	ItemType   *ItemType `json:"item_type"`
}

const itemInfoSchema = `{
	"type": "object",
	"properties": {"item_id": {"type": "string"}},
	"required": ["item_id"],
	"additionalProperties": false
}`

const listRootSchema = `{
	"type": "object",
	"properties": {"page_cursor": {"type": "string"}},
	"additionalProperties": false
}`

const listChildSchema = `{
	"type": "object",
	"properties": {
		"item_id": {"type": "string"},
		"page_cursor": {"type": "string"},
		"item_type": {"type": "string", "enum": ["FILE", "FOLDER"]}
	},
	"required": ["item_id"],
	"additionalProperties": false
}`

// StorageInterface declares every storage addon operation.
var StorageInterface = &Interface{
	Name: InterfaceStorage,
	Operations: []OperationDeclaration{
		declareOperation("get_item_info", CapabilityAccess, ModeImmediate, itemInfoSchema,
			func(ctx context.Context, imp ItemInfoGetter, args itemInfoArgs) (any, error) {
				return imp.GetItemInfo(ctx, args.ItemID)
			}),
		declareOperation("list_root_items", CapabilityAccess, ModeImmediate, listRootSchema,
			func(ctx context.Context, imp RootItemLister, args listRootArgs) (any, error) {
				return imp.ListRootItems(ctx, args.PageCursor)
			}),
		declareOperation("list_child_items", CapabilityAccess, ModeImmediate, listChildSchema,
			func(ctx context.Context, imp ChildItemLister, args listChildArgs) (any, error) {
				return imp.ListChildItems(ctx, args.ItemID, args.PageCursor, args.ItemType)
			}),
		declareOperation("download", CapabilityAccess, ModeRedirect, itemInfoSchema,
			func(ctx context.Context, imp ItemDownloader, args itemInfoArgs) (any, error) {
				return imp.DownloadURL(ctx, args.ItemID)
			}),
	},
}
