package addon

import (
	"context"
)

// RootCollectionLister pages through the top-level collections of a
// citation library.
type RootCollectionLister interface {
	ListRootCollections(ctx context.Context, pageCursor string) (ItemSample, error)
}

// CollectionItemLister pages through the contents of one collection:
// sub-collections, documents, or both.
type CollectionItemLister interface {
	ListCollectionItems(ctx context.Context, collectionID, pageCursor string, itemType *ItemType) (ItemSample, error)
}

type listCollectionArgs struct {
	CollectionID string    `json:"collection_id"`
	PageCursor   string    `json:"page_cursor"`
	ItemType     *ItemType `json:"item_type"`
}

const listCollectionSchema = `{
	"type": "object",
	"properties": {
		"collection_id": {"type": "string"},
		"page_cursor": {"type": "string"},
		"item_type": {"type": "string", "enum": ["COLLECTION", "DOCUMENT"]}
	},
	"required": ["collection_id"],
	"additionalProperties": false
}`

// CitationInterface declares every citation addon operation.
var CitationInterface = &Interface{
	Name: InterfaceCitation,
	Operations: []OperationDeclaration{
		declareOperation("get_item_info", CapabilityAccess, ModeImmediate, itemInfoSchema,
			func(ctx context.Context, imp ItemInfoGetter, args itemInfoArgs) (any, error) {
				return imp.GetItemInfo(ctx, args.ItemID)
			}),
		declareOperation("list_root_collections", CapabilityAccess, ModeImmediate, listRootSchema,
			func(ctx context.Context, imp RootCollectionLister, args listRootArgs) (any, error) {
				return imp.ListRootCollections(ctx, args.PageCursor)
			}),
		declareOperation("list_collection_items", CapabilityAccess, ModeImmediate, listCollectionSchema,
			func(ctx context.Context, imp CollectionItemLister, args listCollectionArgs) (any, error) {
				return imp.ListCollectionItems(ctx, args.CollectionID, args.PageCursor, args.ItemType)
			}),
	},
}
