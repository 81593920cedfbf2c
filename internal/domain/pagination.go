package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidPagination is returned by Pagination.Validate.
var ErrInvalidPagination = errors.New("invalid pagination")

// SortOrder is the direction of a subscription page sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortField is a subscription field a page may be sorted by.
// Only the values below ever reach a query.
type SortField string

const (
	SortByTs       SortField = SubFieldTs
	SortByUnread   SortField = SubFieldUnread
	SortByName     SortField = SubFieldName
	SortByRid      SortField = SubFieldRid
	SortByLastSeen SortField = SubFieldLs
)

var sortableFields = map[SortField]struct{}{
	SortByTs:       {},
	SortByUnread:   {},
	SortByName:     {},
	SortByRid:      {},
	SortByLastSeen: {},
}

// Pagination selects a window of results: offset Page*PageSize, at most PageSize items.
// Page is 0-based. An empty SortBy keeps the store's natural order.
type Pagination struct {
	Page      int       `json:"page" form:"page"`
	PageSize  int       `json:"pageSize" form:"page_size"`
	SortBy    SortField `json:"sortBy,omitempty" form:"sort_by"`
	SortOrder SortOrder `json:"sortOrder,omitempty" form:"sort_order"`
}

// Validate rejects windows and sort options the stores cannot honour.
func (p Pagination) Validate() error {
	if p.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0", ErrInvalidPagination)
	}
	if p.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be > 0", ErrInvalidPagination)
	}
	if p.SortBy != "" {
		if _, ok := sortableFields[p.SortBy]; !ok {
			return fmt.Errorf("%w: unsupported sort field %q", ErrInvalidPagination, p.SortBy)
		}
	}
	switch p.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unsupported sort order %q", ErrInvalidPagination, p.SortOrder)
	}
	return nil
}

// Offset is the number of records to skip.
func (p Pagination) Offset() int64 {
	return int64(p.Page) * int64(p.PageSize)
}

// Limit is the maximum number of records to return.
func (p Pagination) Limit() int64 {
	return int64(p.PageSize)
}

// Sorted reports whether a caller-specified sort applies.
func (p Pagination) Sorted() bool {
	return p.SortBy != ""
}

// Descending reports whether the sort direction is descending.
func (p Pagination) Descending() bool {
	return p.SortOrder == SortDesc
}
