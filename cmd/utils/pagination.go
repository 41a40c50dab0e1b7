package utils

import (
	"strconv"

	"gorm.io/gorm"
)

const DefaultPageSize = 10

type Page[T any] struct {
	Number      int   `json:"number"`
	NumPages    int   `json:"num_pages"`
	Count       int64 `json:"count"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
	Items       []T   `json:"items"`
}

// NumPages is the number of pages needed for count items; an empty list still has one.
func NumPages(count int64, size int) int {
	if count <= 0 {
		return 1
	}
	return int((count + int64(size) - 1) / int64(size))
}

// PageNumber resolves a raw ?page= value against numPages. Missing, non-numeric and
// too-low values give the first page; values past the end give the last page.
func PageNumber(raw string, numPages int) int {
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 {
		return 1
	}
	if number > numPages {
		return numPages
	}
	return number
}

// Paginate counts query and loads the requested page of it. The query must already
// carry its filters and ordering; preloads are applied to the page fetch only.
func Paginate[T any](query *gorm.DB, raw string, size int, preloads ...string) (*Page[T], error) {
	if size < 1 {
		size = DefaultPageSize
	}

	var count int64
	if err := query.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return nil, err
	}

	numPages := NumPages(count, size)
	number := PageNumber(raw, numPages)

	items := make([]T, 0, size)
	if count > 0 {
		find := query.Session(&gorm.Session{})
		for _, preload := range preloads {
			find = find.Preload(preload)
		}
		if err := find.
			Offset((number - 1) * size).
			Limit(size).
			Find(&items).Error; err != nil {
			return nil, err
		}
	}

	return &Page[T]{
		Number:      number,
		NumPages:    numPages,
		Count:       count,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
		Items:       items,
	}, nil
}
