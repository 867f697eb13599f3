// Package query turns optional listing parameters into a page window.
//
// The builder never fails. Missing, unparseable or out-of-range values fall
// back to their defaults, so GET /api/users always answers with a page.
//
// No maximum page size is enforced: a very large size produces a
// correspondingly large single fetch.
package query

import (
	"math"
	"net/url"
	"strconv"
)

// Defaults applied when a parameter is absent or invalid.
const (
	DefaultPage   = 1
	DefaultSize   = 10
	DefaultSortBy = SortCreatedAt
)

// SortField is one of the fields a listing may be ordered by.
type SortField string

const (
	SortUsername  SortField = "username"
	SortEmail     SortField = "email"
	SortCreatedAt SortField = "createdAt"
)

// Direction is the sort direction.
type Direction int

const (
	Descending Direction = -1
	Ascending  Direction = 1
)

func (d Direction) String() string {
	if d == Ascending {
		return "asc"
	}
	return "desc"
}

// Params are the raw listing parameters as received from the client.
type Params struct {
	Page   string
	Size   string
	SortBy string
	Order  string
}

// ParamsFromValues reads page, size, sortBy and order from a query string.
func ParamsFromValues(q url.Values) Params {
	return Params{
		Page:   q.Get("page"),
		Size:   q.Get("size"),
		SortBy: q.Get("sortBy"),
		Order:  q.Get("order"),
	}
}

// Window describes one page of a listing: skip Skip records in SortField
// order, then return at most Limit of them.
type Window struct {
	Page      int
	Skip      int
	Limit     int
	SortField SortField
	Direction Direction
}

// NewWindow builds the window for p.
//
//	page=3 size=20 → Skip=40 Limit=20
func NewWindow(p Params) Window {
	page := positiveOr(p.Page, DefaultPage)
	size := positiveOr(p.Size, DefaultSize)

	return Window{
		Page:      page,
		Skip:      skip(page, size),
		Limit:     size,
		SortField: sortFieldOr(p.SortBy, DefaultSortBy),
		Direction: direction(p.Order),
	}
}

// skip is (page-1)*size, saturated at math.MaxInt. A window that far out is
// simply empty.
func skip(page, size int) int {
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func sortFieldOr(raw string, def SortField) SortField {
	switch f := SortField(raw); f {
	case SortUsername, SortEmail, SortCreatedAt:
		return f
	default:
		return def
	}
}

// direction maps "asc" to Ascending; anything else is Descending.
func direction(raw string) Direction {
	if raw == "asc" {
		return Ascending
	}
	return Descending
}
