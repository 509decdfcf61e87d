package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=20"`
}

type Cursor struct {
	Offset int `json:"offset"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil || cursor.Offset < 0 {
		return nil, ErrInvalidPageToken
	}

	return &cursor, nil
}

// Window returns the limit and offset for p. The limit is one more than
// the page size so callers can tell whether another page exists.
func (p Pagination) Window() (limit int, offset int, err error) {
	size := p.Size()
	if p.PageToken == "" {
		return size + 1, 0, nil
	}
	cursor, err := DecodeCursor(p.PageToken)
	if err != nil {
		return 0, 0, err
	}
	return size + 1, cursor.Offset, nil
}

func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Page trims items fetched with Window to the page size and builds the
// token of the following page.
func Page[T any](items []T, p Pagination, offset int) ([]T, PageInfo) {
	size := p.Size()
	if len(items) <= size {
		return items, PageInfo{}
	}
	token, err := EncodeCursor(Cursor{Offset: offset + size})
	if err != nil {
		return items[:size], PageInfo{}
	}
	return items[:size], PageInfo{NextPageToken: token, HasMore: true}
}
