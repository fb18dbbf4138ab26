package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-15T08:00:00Z"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.Equal(t, "2026-01-15T08:00:00Z", cursor.CreatedAt)
}

func TestDecodeCursor_RejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	type row struct{ id int }
	cursorOf := func(r *row) string { return strconv.Itoa(r.id) }

	t.Run("empty", func(t *testing.T) {
		info := BuildCursorPageInfo(nil, 10, cursorOf)
		assert.False(t, info.HasMore)
		assert.Empty(t, info.NextPageToken)
	})

	t.Run("overflow row signals more", func(t *testing.T) {
		rows := []*row{{1}, {2}, {3}}
		info := BuildCursorPageInfo(rows, 2, cursorOf)
		assert.True(t, info.HasMore)
		assert.Equal(t, "2", info.NextPageToken)
	})

	t.Run("exact page is final", func(t *testing.T) {
		rows := []*row{{1}, {2}}
		info := BuildCursorPageInfo(rows, 2, cursorOf)
		assert.False(t, info.HasMore)
		assert.Equal(t, "2", info.NextPageToken)
	})
}
