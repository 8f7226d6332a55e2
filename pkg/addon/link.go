package addon

import (
	"context"
)

// ItemURLBuilder resolves an item id to its browsable URL. Runs in redirect
// mode: the caller 302s straight to the provider.
type ItemURLBuilder interface {
	BuildItemURL(ctx context.Context, itemID string) (RedirectResult, error)
}

// LinkInterface declares every link addon operation.
var LinkInterface = &Interface{
	Name: InterfaceLink,
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
		declareOperation("build_url", CapabilityAccess, ModeRedirect, itemInfoSchema,
			func(ctx context.Context, imp ItemURLBuilder, args itemInfoArgs) (any, error) {
				return imp.BuildItemURL(ctx, args.ItemID)
			}),
	},
}
