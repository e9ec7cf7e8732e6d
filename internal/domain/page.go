package domain

// Edge is one paginated record plus its position marker.
type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

// PageInfo describes the boundaries of a page.
type PageInfo struct {
	Count           int     `json:"count"`
	StartCursor     *string `json:"start_cursor"`
	EndCursor       *string `json:"end_cursor"`
	HasNextPage     bool    `json:"has_next_page"`
	HasPreviousPage bool    `json:"has_previous_page"`
}

// Page is a bounded window of an ordered collection. Edges are always in
// ascending sort-key order regardless of the paging direction.
type Page[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"page_info"`
}

// EmptyPage returns a page with no edges, no cursors and both flags false.
func EmptyPage[T any]() *Page[T] {
	return &Page[T]{Edges: []Edge[T]{}}
}

// Nodes returns the records of the page in edge order.
func (p *Page[T]) Nodes() []T {
	out := make([]T, len(p.Edges))
	for i, e := range p.Edges {
		out[i] = e.Node
	}
	return out
}
