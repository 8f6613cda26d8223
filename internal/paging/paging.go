// Package paging splits ordered listings into fixed-size pages.
package paging

import (
	"strconv"
	"strings"
)

// Page describes one page of a listing of Count items.
type Page struct {
	Number   int // 1-based
	NumPages int
	Count    int
	PerPage  int
}

// New resolves raw (usually the "page" query parameter) against count items.
// Bad input never fails: a non-integer selects the first page and an
// out-of-range number selects the nearest valid page. An empty listing still
// has one (empty) page.
func New(count, perPage int, raw string) Page {
	if perPage < 1 {
		perPage = 1
	}
	if count < 0 {
		count = 0
	}
	numPages := (count + perPage - 1) / perPage
	if numPages == 0 {
		numPages = 1
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil || n < 1:
		n = 1
	case n > numPages:
		n = numPages
	}
	return Page{Number: n, NumPages: numPages, Count: count, PerPage: perPage}
}

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }
func (p Page) Limit() int  { return p.PerPage }

func (p Page) HasPrevious() bool { return p.Number > 1 }
func (p Page) HasNext() bool     { return p.Number < p.NumPages }
func (p Page) HasOtherPages() bool {
	return p.HasPrevious() || p.HasNext()
}

func (p Page) PreviousNumber() int { return p.Number - 1 }
func (p Page) NextNumber() int     { return p.Number + 1 }

// Numbers lists every page number, for rendering page links.
func (p Page) Numbers() []int {
	out := make([]int, p.NumPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
