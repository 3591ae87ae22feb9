package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew(t *testing.T) {
	s := New(1000, 50)
	assert.Equal(t, 1, s.CurrentPage)
	assert.Equal(t, 20, s.TotalPages())

	assert.Equal(t, DefaultPageSize, New(10, 0).PageSize)
	assert.Equal(t, 0, New(-4, 10).TotalRows)
	assert.Equal(t, 0, New(0, 10).TotalPages())
	assert.Equal(t, 3, New(21, 10).TotalPages())
}

func TestWindowAndClamp(t *testing.T) {
	s := New(1000, 50)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, s.Window(5))

	s, moved := s.GoTo(21)
	assert.True(t, moved)
	assert.Equal(t, 20, s.CurrentPage)
	assert.Equal(t, []int{16, 17, 18, 19, 20}, s.Window(5))

	s, moved = s.GoTo(21)
	assert.False(t, moved, "already on the last page")
	assert.Equal(t, 20, s.CurrentPage)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name    string
		rows    int
		page    int
		visible int
		want    []int
	}{
		{"centred", 1000, 10, 5, []int{8, 9, 10, 11, 12}},
		{"near start", 1000, 2, 5, []int{1, 2, 3, 4, 5}},
		{"near end", 1000, 19, 5, []int{16, 17, 18, 19, 20}},
		{"fewer pages than window", 120, 2, 5, []int{1, 2, 3}},
		{"even window", 1000, 10, 4, []int{8, 9, 10, 11}},
		{"default size", 1000, 1, 0, []int{1, 2, 3, 4, 5}},
		{"no rows", 0, 1, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := New(tt.rows, 50).GoTo(tt.page)
			assert.Equal(t, tt.want, s.Window(tt.visible))
		})
	}
}

func TestGoTo(t *testing.T) {
	s := New(95, 10)

	next, moved := s.GoTo(0)
	assert.False(t, moved)
	assert.Equal(t, 1, next.CurrentPage)

	next, moved = s.GoTo(4)
	assert.True(t, moved)
	assert.Equal(t, 4, next.CurrentPage)
	assert.Equal(t, 1, s.CurrentPage, "receiver unchanged")

	next, moved = next.GoTo(4)
	assert.False(t, moved)
	assert.Equal(t, 4, next.CurrentPage)
}

func TestNavigation(t *testing.T) {
	s := New(95, 10)

	_, moved := s.Previous()
	assert.False(t, moved)
	assert.False(t, s.HasPrevious())

	s, moved = s.Next()
	require.True(t, moved)
	assert.Equal(t, 2, s.CurrentPage)

	s, _ = s.Last()
	assert.Equal(t, 10, s.CurrentPage)
	assert.False(t, s.HasNext())

	_, moved = s.Next()
	assert.False(t, moved)

	s, _ = s.Previous()
	assert.Equal(t, 9, s.CurrentPage)

	s, _ = s.First()
	assert.Equal(t, 1, s.CurrentPage)
}

func TestResetsToFirstPage(t *testing.T) {
	s, _ := New(1000, 50).GoTo(7)

	resized := s.WithPageSize(100)
	assert.Equal(t, 1, resized.CurrentPage)
	assert.Equal(t, 10, resized.TotalPages())

	replaced := s.WithRows(30)
	assert.Equal(t, 1, replaced.CurrentPage)
	assert.Equal(t, 1, replaced.TotalPages())
}

func TestSlice(t *testing.T) {
	rows := make([]int, 23)
	for i := range rows {
		rows[i] = i
	}

	s := New(len(rows), 10)
	assert.Equal(t, rows[0:10], Slice(rows, s))

	s, _ = s.Last()
	assert.Equal(t, []int{20, 21, 22}, Slice(rows, s))

	start, end := s.Bounds()
	assert.Equal(t, 20, start)
	assert.Equal(t, 23, end)

	assert.Nil(t, Slice([]int{}, New(0, 10)))
}

func TestPagesPartitionRows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(0, 2000).Draw(t, "total")
		size := rapid.SampledFrom(append([]int{1, 3, 7}, PageSizes...)).Draw(t, "size")

		rows := make([]int, total)
		for i := range rows {
			rows[i] = i
		}

		s := New(total, size)
		var seen []int
		for p := 1; p <= s.TotalPages(); p++ {
			cur, _ := s.GoTo(p)
			if cur.CurrentPage != p {
				t.Fatalf("GoTo(%d) landed on %d", p, cur.CurrentPage)
			}
			page := Slice(rows, cur)
			if len(page) > size {
				t.Fatalf("page %d has %d rows, size %d", p, len(page), size)
			}
			seen = append(seen, page...)
		}

		if len(seen) != total {
			t.Fatalf("pages hold %d rows, want %d", len(seen), total)
		}
		for i, v := range seen {
			if v != i {
				t.Fatalf("row %d out of order or duplicated: %d", i, v)
			}
		}
	})
}

func TestWindowWithinRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(0, 5000).Draw(t, "total")
		size := rapid.SampledFrom(PageSizes).Draw(t, "size")
		visible := rapid.IntRange(1, 12).Draw(t, "visible")

		s := New(total, size)
		s, _ = s.GoTo(rapid.IntRange(-5, s.TotalPages()+5).Draw(t, "page"))

		w := s.Window(visible)
		if len(w) != min(visible, s.TotalPages()) {
			t.Fatalf("window length %d, want %d", len(w), min(visible, s.TotalPages()))
		}
		for i, p := range w {
			if p < 1 || p > s.TotalPages() {
				t.Fatalf("page %d outside [1,%d]", p, s.TotalPages())
			}
			if i > 0 && p != w[i-1]+1 {
				t.Fatalf("window not contiguous: %v", w)
			}
		}
		if len(w) > 0 && (s.CurrentPage < w[0] || s.CurrentPage > w[len(w)-1]) {
			t.Fatalf("current page %d not in window %v", s.CurrentPage, w)
		}
	})
}
