package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// DefaultLimit is the default number of items per page
const DefaultLimit = 20

// MaxLimit is the maximum number of items per page
const MaxLimit = 100

// PaginationRequest holds pagination parameters
type PaginationRequest struct {
	Page  int `form:"page"`
	Limit int `form:"per_page"`
}

// PaginatedResponse is the list envelope of the alert API
type PaginatedResponse[T any] struct {
	Items       []T `json:"items"`
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
}

// GetPaginationFromContext extracts page and per_page from the query string.
// Invalid values fall back to page 1 and defaultLimit; per_page is capped
// at maxLimit.
func GetPaginationFromContext(ctx *gin.Context, defaultLimit, maxLimit int) PaginationRequest {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(ctx.DefaultQuery("per_page", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationRequest{Page: page, Limit: limit}
}

// Offset returns the index of the first item on the page
func (p PaginationRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Paginate slices items according to p and wraps them in the list envelope
func Paginate[T any](items []T, p PaginationRequest) PaginatedResponse[T] {
	total := len(items)

	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}

	page := make([]T, end-start)
	copy(page, items[start:end])

	return PaginatedResponse[T]{
		Items:       page,
		Total:       total,
		Pages:       calculateTotalPages(total, p.Limit),
		CurrentPage: p.Page,
		PerPage:     p.Limit,
	}
}

// calculateTotalPages calculates the total number of pages
func calculateTotalPages(totalItems, perPage int) int {
	if perPage == 0 {
		return 0
	}

	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	return totalPages
}
