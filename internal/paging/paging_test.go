package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDegradesToNearestPage(t *testing.T) {
	cases := []struct {
		name   string
		count  int
		raw    string
		number int
		pages  int
	}{
		{"empty query", 7, "", 1, 3},
		{"not a number", 7, "abc", 1, 3},
		{"zero", 7, "0", 1, 3},
		{"negative", 7, "-4", 1, 3},
		{"middle", 7, "2", 2, 3},
		{"last", 7, "3", 3, 3},
		{"past the end", 7, "99", 3, 3},
		{"empty listing", 0, "5", 1, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := New(c.count, 3, c.raw)
			assert.Equal(t, c.number, p.Number)
			assert.Equal(t, c.pages, p.NumPages)
		})
	}
}

func TestOffsetsAndNavigation(t *testing.T) {
	p := New(11, 5, "2")
	assert.Equal(t, 5, p.Offset())
	assert.Equal(t, 5, p.Limit())
	assert.True(t, p.HasPrevious())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.PreviousNumber())
	assert.Equal(t, 3, p.NextNumber())
	assert.Equal(t, []int{1, 2, 3}, p.Numbers())

	single := New(2, 5, "")
	assert.False(t, single.HasOtherPages())
}
