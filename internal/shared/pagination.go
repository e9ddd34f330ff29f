package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Window clips a full result set of length total to the page this metadata
// describes, returning slice bounds.
func (p Pagination) Window(total int) (int, int) {
	start := (p.Page - 1) * p.PerPage
	if start >= total {
		return total, total
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}
	return start, end
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
