package pagination

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	id := snowflake.ID(1893527616527405056)
	token := EncodeCursor(Cursor{ID: id})
	require.NotEmpty(t, token)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, id, cursor.ID)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.Error(t, err)

	// Valid base64 wrapping invalid json.
	_, err = DecodeCursor("bm90LWpzb24=")
	assert.Error(t, err)

	// Well-formed token without an id.
	_, err = DecodeCursor(EncodeCursor(Cursor{}))
	assert.Error(t, err)
}

type row struct{ id snowflake.ID }

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{id: 3}, {id: 2}, {id: 1}}
	lastID := func(r *row) snowflake.ID { return r.id }

	info := BuildCursorPageInfo(rows, 2, lastID)
	assert.True(t, info.HasMore)
	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), cursor.ID)

	info = BuildCursorPageInfo(rows, 3, lastID)
	assert.False(t, info.HasMore)
	cursor, err = DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), cursor.ID)

	info = BuildCursorPageInfo(nil, 10, lastID)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
