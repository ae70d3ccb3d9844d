package utils

import (
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination describes one page of a listing for templates.
type Pagination struct {
	CurrentPage int
	TotalPages  int
	PageSize    int
	TotalItems  int
}

// HasPrevious reports whether a page precedes the current one.
func (p Pagination) HasPrevious() bool { return p.CurrentPage > 1 }

// HasNext reports whether a page follows the current one.
func (p Pagination) HasNext() bool { return p.CurrentPage < p.TotalPages }

// Previous page number.
func (p Pagination) Previous() int { return p.CurrentPage - 1 }

// Next page number.
func (p Pagination) Next() int { return p.CurrentPage + 1 }

// ParsePageSize reads a per-page value, falling back to the default when invalid.
func ParsePageSize(s string) int {
	size, err := strconv.Atoi(s)
	if err != nil || size <= 0 || size > MaxPageSize {
		return DefaultPageSize
	}
	return size
}

// ParsePageNumber reads a 1-based page number; anything that is not a positive integer is page 1.
func ParsePageNumber(s string) int {
	page, err := strconv.Atoi(s)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// NewPagination clamps page into [1, TotalPages]. A page past the end shows the last page.
func NewPagination(totalItems, page, size int) Pagination {
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages := (totalItems + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		PageSize:    size,
		TotalItems:  totalItems,
	}
}
