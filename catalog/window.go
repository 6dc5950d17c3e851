// catalog/window.go
package catalog

// windowWidth is the number of page controls shown around the current
// page.
const windowWidth = 3

// PageWindow is the pagination control strip the browsing UI renders:
// a sliding window of page numbers anchored on the current page, with
// First/Last shortcuts only when the window excludes those edges.
type PageWindow struct {
	TotalPages int   `json:"total_pages"`
	Pages      []int `json:"pages"`
	ShowFirst  bool  `json:"show_first"`
	ShowLast   bool  `json:"show_last"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

// ComputeWindow builds the page-number window for a result set of
// total items at the given page and limit. The window never exceeds
// [1, totalPages].
func ComputeWindow(total int64, page, limit int) PageWindow {
	if limit < 1 {
		limit = 1
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := page - 1
	end := page + 1
	if totalPages <= windowWidth {
		start = 1
		end = totalPages
	} else if page <= 2 {
		start = 1
		end = windowWidth
	} else if page >= totalPages-1 {
		start = totalPages - windowWidth + 1
		end = totalPages
	}
	if start < 1 {
		start = 1
	}
	if end > totalPages {
		end = totalPages
	}

	pages := make([]int, 0, windowWidth)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}

	return PageWindow{
		TotalPages: totalPages,
		Pages:      pages,
		ShowFirst:  totalPages > windowWidth && page > 2,
		ShowLast:   totalPages > windowWidth && page < totalPages-1,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}
