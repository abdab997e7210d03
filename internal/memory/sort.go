package memory

import (
	"slices"
	"strings"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// sortCategories orders by creation time, then id.
func sortCategories(cats []*types.Category) {
	slices.SortFunc(cats, func(a, b *types.Category) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.CategoryID, b.CategoryID)
	})
}
