package models

import (
	"fmt"
	"sort"
	"strings"
)

// CatalogFilter представляет фильтры листинга удаленного каталога
type CatalogFilter struct {
	// Основные поля фильтрации
	Keyword     string `json:"keyword,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	ProductSKU  string `json:"product_sku,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	CountryCode string `json:"country_code,omitempty"`

	// Фильтрация по цене
	MinPrice float64 `json:"min_price,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`

	// ShipTo - страна доставки; применяется к листингу на нашей стороне,
	// товары с неизвестным складом не исключаются
	ShipTo string `json:"ship_to,omitempty"`

	// Пагинация запроса
	PageNum  int `json:"page_num"`
	PageSize int `json:"page_size"`
}

// ToMap преобразует CatalogFilter в параметры запроса к API поставщика
func (f *CatalogFilter) ToMap() map[string]interface{} {
	result := make(map[string]interface{})

	if f.Keyword != "" {
		result["productNameEn"] = f.Keyword
	}

	if f.CategoryID != "" {
		result["categoryId"] = f.CategoryID
	}

	if f.ProductSKU != "" {
		result["productSku"] = f.ProductSKU
	}

	if f.ProductType != "" {
		result["productType"] = f.ProductType
	}

	if f.CountryCode != "" {
		result["countryCode"] = strings.ToUpper(f.CountryCode)
	}

	if f.MinPrice > 0 {
		result["minPrice"] = f.MinPrice
	}

	if f.MaxPrice > 0 {
		result["maxPrice"] = f.MaxPrice
	}

	if f.PageNum > 0 {
		result["pageNum"] = f.PageNum
	}

	if f.PageSize > 0 {
		result["pageSize"] = f.PageSize
	}

	return result
}

// CacheKey возвращает стабильный ключ кэша для набора фильтров.
// ShipTo входит в ключ, так как влияет на состав страницы.
func (f *CatalogFilter) CacheKey() string {
	params := f.ToMap()
	if f.ShipTo != "" {
		params["shipTo"] = strings.ToUpper(f.ShipTo)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("catalog:list")
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%v", k, params[k])
	}
	return b.String()
}
