package controller

import (
	"net/http"
	"strconv"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// SortOrder represents the sort direction for history queries.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

type pageSpec struct {
	Limit  int
	Cursor uint64
	Sort   SortOrder
}

type pagedResponse[T any] struct {
	Data       []T     `json:"data"`
	Limit      int     `json:"limit"`
	NextCursor *uint64 `json:"nextCursor,omitempty"`
}

func parsePageSpec(r *http.Request) (pageSpec, error) {
	qs := r.URL.Query()
	limit := defaultLimit
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return pageSpec{}, errInvalidLimit
		}
		limit = min(n, maxLimit)
	}

	var cursor uint64
	if v := qs.Get("cursor"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return pageSpec{}, errInvalidCursor
		}
		cursor = n
	}

	// Default to "asc": history reads naturally oldest-first.
	sort := SortOrderAsc
	if v := qs.Get("sort"); v != "" {
		switch v {
		case "asc":
			sort = SortOrderAsc
		case "desc":
			sort = SortOrderDesc
		default:
			return pageSpec{}, errInvalidSort
		}
	}

	return pageSpec{Limit: limit, Cursor: cursor, Sort: sort}, nil
}

var (
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errInvalidCursor = &parseError{msg: "invalid cursor"}
	errInvalidSort   = &parseError{msg: "invalid sort, must be 'asc' or 'desc'"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
