// Package paging implements cursor pagination over ordered collections.
//
// A page is computed with one "limit+1" fetch plus, at most, one existence
// query for the opposite direction. No COUNT query is issued.
package paging

import (
	"context"
	"slices"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg/cursor"
)

// DefaultSortField is the sort key used when a request names none.
const DefaultSortField = "id"

// CodeInvalidLimit is returned for non-positive limits.
const CodeInvalidLimit = "invalid_limit"

// Collection is the query-building seam between the paginator and a store.
// Every method returning a Collection must leave the receiver unchanged.
type Collection[T any] interface {
	// OrderBy orders by field, descending when desc is true.
	OrderBy(field string, desc bool) Collection[T]
	// After keeps records whose field is strictly greater than value.
	After(field, value string) Collection[T]
	// Before keeps records whose field is strictly less than value.
	Before(field, value string) Collection[T]
	// Fetch returns at most limit records.
	Fetch(ctx context.Context, limit int) ([]T, error)
	// Exists reports whether the collection has at least one record.
	Exists(ctx context.Context) (bool, error)
	// Key returns the string form of item's sort key.
	Key(item T) string
}

// Request describes one page to compute.
type Request struct {
	Cursor    string
	Limit     int
	Forward   bool
	SortField string
	// IncludeMore enables the has-next/has-previous computation. When false
	// both flags are false and no existence query runs.
	IncludeMore bool
}

// NewRequest returns a Request on the default sort field with IncludeMore set.
func NewRequest(cur string, limit int, forward bool) Request {
	return Request{
		Cursor:      cur,
		Limit:       limit,
		Forward:     forward,
		SortField:   DefaultSortField,
		IncludeMore: true,
	}
}

// Paginate returns the page of src described by req. Edges are ascending by
// the sort field whatever the direction. An out-of-range cursor yields an
// empty page; a malformed one yields an input error.
func Paginate[T any](ctx context.Context, src Collection[T], req Request) (*domain.Page[T], error) {
	if req.Limit <= 0 {
		return nil, domain.InputError(CodeInvalidLimit, "Limit must be greater than 0.")
	}
	field := req.SortField
	if field == "" {
		field = DefaultSortField
	}

	original := src.OrderBy(field, !req.Forward)
	window := original
	if req.Cursor != "" {
		raw, err := cursor.Decode(req.Cursor)
		if err != nil {
			return nil, err
		}
		if req.Forward {
			window = original.After(field, raw)
		} else {
			window = original.Before(field, raw)
		}
	}

	items, err := window.Fetch(ctx, req.Limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(items) > req.Limit
	if hasMore {
		items = items[:req.Limit]
	}
	if len(items) == 0 {
		return domain.EmptyPage[T](), nil
	}
	if !req.Forward {
		slices.Reverse(items)
	}

	edges := make([]domain.Edge[T], len(items))
	for i, item := range items {
		edges[i] = domain.Edge[T]{Cursor: cursor.Encode(src.Key(item)), Node: item}
	}
	startKey := src.Key(items[0])
	endKey := src.Key(items[len(items)-1])
	start := edges[0].Cursor
	end := edges[len(edges)-1].Cursor

	info := domain.PageInfo{
		Count:       len(edges),
		StartCursor: &start,
		EndCursor:   &end,
	}
	if req.IncludeMore {
		if req.Forward {
			info.HasNextPage = hasMore
			info.HasPreviousPage, err = original.Before(field, startKey).Exists(ctx)
		} else {
			info.HasPreviousPage = hasMore
			info.HasNextPage, err = original.After(field, endKey).Exists(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	return &domain.Page[T]{Edges: edges, PageInfo: info}, nil
}
