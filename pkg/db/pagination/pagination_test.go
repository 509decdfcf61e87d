package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAndPage(t *testing.T) {
	p := Pagination{PageSize: 2}
	limit, offset, err := p.Window()
	require.NoError(t, err)
	assert.Equal(t, 3, limit)
	assert.Zero(t, offset)

	items, info := Page([]int{1, 2, 3}, p, offset)
	assert.Equal(t, []int{1, 2}, items)
	require.True(t, info.HasMore)

	next := Pagination{PageSize: 2, PageToken: info.NextPageToken}
	_, offset, err = next.Window()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)

	items, info = Page([]int{3}, next, offset)
	assert.Equal(t, []int{3}, items)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestInvalidPageToken(t *testing.T) {
	_, _, err := Pagination{PageToken: "%%%"}.Window()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestSizeBounds(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
}
