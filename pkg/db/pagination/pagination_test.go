package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1234", CreatedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1234", cursor.ID)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(r *row) string { return r.id }

	info := BuildCursorPageInfo([]*row{{"a"}, {"b"}}, 2, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo([]*row{{"a"}, {"b"}, {"c"}}, 2, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "b", info.NextPageToken)
}

func TestPaginationLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}
