package shared

// Filter carries paging, ordering and free-text search of list queries
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
}

// Page size bounds of list queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging values into their allowed range
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.OrderDir != "asc" {
		f.OrderDir = "desc"
	}
	return f
}

// Offset returns the row offset for the current page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize > 0 {
			totalPages++
		}
	}
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
