package calendar

import (
	"iter"
	"slices"
)

const (
	DefaultPageSize = 10
	// Больше этого за один запрос не отдаём.
	MaxPageSize = 100
)

// Page описывает одну страницу выдачи.
type Page[T any] struct {
	Items      []T
	Page       int // с 1
	PageSize   int
	TotalPages int
	HasNext    bool
	HasPrev    bool
	Total      int
}

// Collect проходит последовательность один раз и оставляет в памяти только
// элементы запрошенной страницы. Total считается по всей последовательности.
// page <= 0 даёт первую страницу, pageSize <= 0 размер по умолчанию,
// pageSize больше MaxPageSize урезается.
func Collect[T any](seq iter.Seq[T], page, pageSize int) Page[T] {
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * pageSize
	items := make([]T, 0, pageSize)
	total := 0
	for v := range seq {
		if total >= start && total < start+pageSize {
			items = append(items, v)
		}
		total++
	}

	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasNext:    start+pageSize < total,
		HasPrev:    page > 1,
		Total:      total,
	}
}

// Paginate режет готовый срез так же, как Collect.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	return Collect(slices.Values(items), page, pageSize)
}
