// Package pagination implements opaque cursor paging for list operations.
// Cursors are base64-encoded JSON so callers can hand them back verbatim
// without depending on their layout.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// DefaultLimit applies when a caller does not set Pagination.Limit.
const DefaultLimit = 10

type Pagination struct {
	Cursor string
	Limit  int
}

// Cursor marks the last row of the previous page.
type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildCursorPageInfo derives page info from a result fetched with one row
// beyond the limit. The caller still truncates its own slice.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) string) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{}
	}
	hasMore := len(data) > limit
	if hasMore {
		data = data[:limit]
	}
	return &PageInfo{
		HasMore:    hasMore,
		NextCursor: extractCursor(data[len(data)-1]),
	}
}
