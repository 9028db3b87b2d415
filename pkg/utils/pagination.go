package utils

// Границы размера страницы удаленного каталога по умолчанию
const (
	DefaultMinPageSize = 10
	DefaultMaxPageSize = 200
	DefaultPageSize    = 20
)

// Pagination описывает позицию в постраничной выдаче поставщика.
// Total и TotalPages - указатели: nil означает "поставщик не прислал",
// что отличается от нуля.
type Pagination struct {
	Page       int  `json:"page"`        // Номер страницы (начиная с 1)
	PageSize   int  `json:"page_size"`   // Размер страницы
	Total      *int `json:"total"`       // Общее количество элементов, если известно
	TotalPages *int `json:"total_pages"` // Общее количество страниц, если известно
	HasNext    bool `json:"has_next"`    // Есть ли следующая страница
	HasPrev    bool `json:"has_prev"`    // Есть ли предыдущая страница
}

// NewPagination создает Pagination, приводя номер страницы к >= 1,
// а размер страницы к диапазону [minSize, maxSize].
func NewPagination(page, pageSize, minSize, maxSize int) *Pagination {
	if page < 1 {
		page = 1
	}

	return &Pagination{
		Page:     page,
		PageSize: ClampPageSize(pageSize, minSize, maxSize),
		HasPrev:  page > 1,
	}
}

// ClampPageSize приводит размер страницы к допустимому диапазону.
// Нулевой или отрицательный размер заменяется на DefaultPageSize.
func ClampPageSize(pageSize, minSize, maxSize int) int {
	if minSize < 1 {
		minSize = DefaultMinPageSize
	}
	if maxSize < minSize {
		maxSize = DefaultMaxPageSize
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize < minSize {
		return minSize
	}
	if pageSize > maxSize {
		return maxSize
	}
	return pageSize
}

// SetTotals фиксирует итоги, присланные поставщиком, и пересчитывает HasNext.
//
// Явное количество страниц имеет приоритет; иначе количество страниц
// выводится из total. Если не известно ни то, ни другое, считаем, что
// следующая страница есть, когда текущая пришла полной (fetched >= PageSize).
func (p *Pagination) SetTotals(total, totalPages *int, fetched int) {
	p.Total = total
	p.TotalPages = totalPages

	if p.TotalPages == nil && p.Total != nil && p.PageSize > 0 {
		pages := (*p.Total + p.PageSize - 1) / p.PageSize
		p.TotalPages = &pages
	}

	if p.TotalPages != nil {
		p.HasNext = p.Page < *p.TotalPages
	} else {
		p.HasNext = fetched >= p.PageSize
	}
	p.HasPrev = p.Page > 1
}

// GetOffset возвращает смещение для SQL запроса
func (p *Pagination) GetOffset() int {
	return (p.Page - 1) * p.PageSize
}
