package models

// Sort orders accepted by the order extraction script.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Size kinds accepted by the size extraction script.
const (
	SizeMax = "max"
	SizeMin = "min"
)

// Pagination defaults applied when a caller leaves page or limit unset.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// QueryRequest carries the parameters of a record listing.
// Range mode is selected when both Min and Max are set; it takes
// precedence over Order.
type QueryRequest struct {
	FileName string
	Page     int
	Limit    int
	Name     string // Substring filter, empty disables it
	Order    string // "asc" or "desc"; empty means asc
	Min      *int
	Max      *int
}

// HasRange reports whether both range bounds are present.
func (q QueryRequest) HasRange() bool {
	return q.Min != nil && q.Max != nil
}

// SizeQuery asks for the max or min scalar of a stored file.
type SizeQuery struct {
	FileName string
	Kind     string
}

// Window returns the half-open [start, end) bounds of a page over a
// sequence of length n. Both bounds are clamped to n so that pages past
// the end yield an empty window. Offsets are never computed for pages
// past the end, so no page number can overflow.
func Window(page, limit, n int) (start, end int) {
	if page < 1 || limit < 1 {
		return n, n
	}
	pages := n / limit
	if n%limit != 0 {
		pages++
	}
	if page-1 >= pages {
		return n, n
	}
	start = (page - 1) * limit
	end = n
	if limit < n-start {
		end = start + limit
	}
	return start, end
}
