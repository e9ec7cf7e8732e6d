package graphql

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/relay"

	"github.com/simp-lee/hive/internal/domain"
)

// ToGlobalID encodes a relay global id, base64("Type:id").
func ToGlobalID(typeName string, id uint) string {
	return relay.ToGlobalID(typeName, strconv.FormatUint(uint64(id), 10))
}

// FromGlobalID decodes a relay global id into its type name and local id.
// The local id must be a positive integer.
func FromGlobalID(globalID string) (string, uint, error) {
	resolved := relay.FromGlobalID(globalID)
	if resolved == nil || resolved.Type == "" {
		return "", 0, fmt.Errorf("global id %q has no type", globalID)
	}
	id, err := strconv.ParseUint(resolved.ID, 10, 64)
	if err != nil || id == 0 {
		return "", 0, fmt.Errorf("global id %q has no numeric id", globalID)
	}
	return resolved.Type, uint(id), nil
}

// userConnection shapes a page for the relay connection types, which resolve
// their fields by name. Absent cursors stay null.
func userConnection(page *domain.Page[domain.User]) map[string]any {
	edges := make([]map[string]any, len(page.Edges))
	for i := range page.Edges {
		edges[i] = map[string]any{
			"cursor": page.Edges[i].Cursor,
			"node":   userNode{u: &page.Edges[i].Node},
		}
	}
	info := page.PageInfo
	return map[string]any{
		"edges": edges,
		"count": info.Count,
		"pageInfo": map[string]any{
			"hasNextPage":     info.HasNextPage,
			"hasPreviousPage": info.HasPreviousPage,
			"startCursor":     deref(info.StartCursor),
			"endCursor":       deref(info.EndCursor),
		},
	}
}
