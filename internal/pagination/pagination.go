// Package pagination windows an ordered row set into fixed-size pages.
//
// State is a value; every transition returns a new State and leaves the
// receiver untouched.
package pagination

// DefaultPageSize is the page size used when none is chosen.
const DefaultPageSize = 50

// DefaultWindow is the number of page links shown by default.
const DefaultWindow = 5

// PageSizes are the sizes offered to the user.
var PageSizes = []int{10, 25, 50, 100}

// State is the cursor over a row set.
type State struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalRows   int `json:"totalRows"`
}

// New returns page 1 of totalRows rows at pageSize rows per page.
func New(totalRows, pageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if totalRows < 0 {
		totalRows = 0
	}
	return State{CurrentPage: 1, PageSize: pageSize, TotalRows: totalRows}
}

// TotalPages is ceil(TotalRows / PageSize).
func (s State) TotalPages() int {
	if s.PageSize <= 0 || s.TotalRows <= 0 {
		return 0
	}
	return (s.TotalRows + s.PageSize - 1) / s.PageSize
}

// WithPageSize changes the page size and returns to page 1.
func (s State) WithPageSize(size int) State {
	return New(s.TotalRows, size)
}

// WithRows replaces the row count and returns to page 1.
func (s State) WithRows(total int) State {
	return New(total, s.PageSize)
}

// GoTo moves to page, clamped into [1, TotalPages]. The bool is false when
// the clamped page is the current one.
func (s State) GoTo(page int) (State, bool) {
	last := max(1, s.TotalPages())
	page = min(max(page, 1), last)
	if page == s.CurrentPage {
		return s, false
	}
	s.CurrentPage = page
	return s, true
}

// Next moves forward one page.
func (s State) Next() (State, bool) { return s.GoTo(s.CurrentPage + 1) }

// Previous moves back one page.
func (s State) Previous() (State, bool) { return s.GoTo(s.CurrentPage - 1) }

// First moves to page 1.
func (s State) First() (State, bool) { return s.GoTo(1) }

// Last moves to the final page.
func (s State) Last() (State, bool) { return s.GoTo(s.TotalPages()) }

// HasNext reports whether a later page exists.
func (s State) HasNext() bool { return s.CurrentPage < s.TotalPages() }

// HasPrevious reports whether an earlier page exists.
func (s State) HasPrevious() bool { return s.CurrentPage > 1 }

// Window returns up to maxVisible consecutive page numbers centred on the
// current page and shifted inward at either end.
func (s State) Window(maxVisible int) []int {
	if maxVisible <= 0 {
		maxVisible = DefaultWindow
	}
	total := s.TotalPages()
	n := min(maxVisible, total)
	if n == 0 {
		return nil
	}

	start := s.CurrentPage - n/2
	if start < 1 {
		start = 1
	}
	end := start + n - 1
	if end > total {
		end = total
		start = end - n + 1
	}

	out := make([]int, 0, n)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out
}

// Bounds returns the half-open row range [start, end) of the current page.
func (s State) Bounds() (start, end int) {
	if s.TotalRows <= 0 || s.PageSize <= 0 {
		return 0, 0
	}
	start = (s.CurrentPage - 1) * s.PageSize
	if start > s.TotalRows {
		start = s.TotalRows
	}
	end = min(s.CurrentPage*s.PageSize, s.TotalRows)
	return start, end
}

// Slice returns the rows of the current page. Rows beyond len(rows) are
// ignored if the state is stale.
func Slice[T any](rows []T, s State) []T {
	start, end := s.Bounds()
	end = min(end, len(rows))
	if start >= end {
		return nil
	}
	return rows[start:end]
}
