package interp

import (
	"context"
	"sort"

	"github.com/mzizi/muundo/internal/action"
	"github.com/mzizi/muundo/model"
)

// NavigationResolver builds the rendered navigation from the active
// document: invisible items dropped, the rest sorted by explicit order,
// badges resolved.
type NavigationResolver struct {
	registry documentHolder
	badges   *action.BadgeResolver
}

type documentHolder interface {
	Document() *model.StructureDocument
}

// NewNavigationResolver creates a NavigationResolver. The badge resolver
// may be nil; badge sources then render as zero.
func NewNavigationResolver(registry documentHolder, badges *action.BadgeResolver) *NavigationResolver {
	return &NavigationResolver{registry: registry, badges: badges}
}

// Resolve returns the visible navigation entries in ascending order. The
// sort is stable, so items sharing an order keep their document position.
func (n *NavigationResolver) Resolve(ctx context.Context) []model.NavigationEntry {
	doc := n.registry.Document()

	items := make([]model.NavigationItem, 0, len(doc.Navigation))
	for _, item := range doc.Navigation {
		if item.Visible {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Order < items[b].Order
	})

	entries := make([]model.NavigationEntry, 0, len(items))
	for _, item := range items {
		entry := model.NavigationEntry{
			ID:     item.ID,
			Label:  item.Label,
			Icon:   item.Icon,
			PageID: item.PageID,
		}
		switch {
		case item.BadgeSource != "":
			count := 0
			if n.badges != nil {
				count = n.badges.Resolve(ctx, item.BadgeSource)
			}
			entry.Badge = &model.BadgeView{Count: count, Source: item.BadgeSource}
		case item.BadgeCount > 0:
			entry.Badge = &model.BadgeView{Count: item.BadgeCount}
		}
		entries = append(entries, entry)
	}
	return entries
}
