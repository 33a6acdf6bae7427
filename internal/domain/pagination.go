package domain

import "math"

type PaginationMetadata struct {
	TotalItemCount int `json:"totalItemCount"`
	PageSize       int `json:"pageSize"`
	CurrentPage    int `json:"currentPage"`
	TotalPageCount int `json:"totalPageCount"`
}

func NewPaginationMetadata(totalItemCount, pageSize, currentPage int) PaginationMetadata {
	return PaginationMetadata{
		TotalItemCount: totalItemCount,
		PageSize:       pageSize,
		CurrentPage:    currentPage,
		TotalPageCount: pageCount(totalItemCount, pageSize),
	}
}

func pageCount(total, pageSize int) int {
	n := total / pageSize
	if total%pageSize != 0 {
		n++
	}
	return n
}

// CheckPage rejects page coordinates the skip/take arithmetic cannot handle.
func CheckPage(pageNumber, pageSize int) error {
	if pageNumber < 1 {
		return ErrInvalidPage
	}
	if pageSize < 1 {
		return ErrInvalidPageSize
	}
	return nil
}

// Offset is the number of items skipped before the requested page. It
// saturates at math.MaxInt instead of overflowing.
func Offset(pageNumber, pageSize int) int {
	if pageNumber <= 1 || pageSize <= 0 {
		return 0
	}
	if pageNumber-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return pageSize * (pageNumber - 1)
}

// Paginate slices an already filtered and ordered sequence. Pages past the end
// yield an empty (non-nil) slice while the metadata keeps the true total.
func Paginate[T any](items []T, pageNumber, pageSize int) ([]T, PaginationMetadata, error) {
	if err := CheckPage(pageNumber, pageSize); err != nil {
		return nil, PaginationMetadata{}, err
	}
	meta := NewPaginationMetadata(len(items), pageSize, pageNumber)
	if pageNumber-1 >= meta.TotalPageCount {
		return []T{}, meta, nil
	}
	skip := Offset(pageNumber, pageSize)
	take := min(pageSize, len(items)-skip)
	out := make([]T, take)
	copy(out, items[skip:skip+take])
	return out, meta, nil
}
