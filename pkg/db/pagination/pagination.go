package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"` // Min 1, Max 250
}

// Cursor marks a position in an id-ordered listing. Snowflake ids are
// time-sorted, so the id doubles as the creation-order cursor. It travels
// inside the page token as base64 JSON.
type Cursor struct {
	ID snowflake.ID `json:"id"`
}

type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token"`
	HasMore           bool   `json:"has_more"`
}

var errEmptyCursor = errors.New("pagination: cursor has no id")

func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	if cursor.ID == 0 {
		return nil, errEmptyCursor
	}
	return &cursor, nil
}

// BuildCursorPageInfo trims one-past-the-limit result sets and points the
// next token at the last row kept.
func BuildCursorPageInfo[T any](data []*T, limit int, lastID func(*T) snowflake.ID) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{}
	}

	hasMore := len(data) > limit
	if hasMore {
		data = data[:limit]
	}
	return &PageInfo{
		HasMore:       hasMore,
		NextPageToken: EncodeCursor(Cursor{ID: lastID(data[len(data)-1])}),
	}
}
