package models

import "github.com/shopspring/decimal"

// RemoteCatalogRecord - нормализованная запись каталога поставщика.
// Живет от ответа API до слияния в рабочий набор или импорта.
type RemoteCatalogRecord struct {
	ExternalID   string           `json:"external_id"`
	Name         string           `json:"name"`
	SKU          *string          `json:"sku,omitempty"`
	CategoryName string           `json:"category_name,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Inventory    *int             `json:"inventory,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
	// Пустой набор означает "склад неизвестен", такие товары не отфильтровываются
	WarehouseCountries []string `json:"warehouse_countries"`

	Raw map[string]any `json:"-"`
}

// RemoteVariant - вариант товара в ответе поставщика
type RemoteVariant struct {
	ExternalVariantID string           `json:"external_variant_id"`
	SKU               string           `json:"sku"`
	Name              string           `json:"name"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	Inventory         *int             `json:"inventory,omitempty"`
	ImageURL          string           `json:"image_url,omitempty"`
}

// RemoteProductDetail - детальная карточка товара поставщика
type RemoteProductDetail struct {
	RemoteCatalogRecord
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Variants    []RemoteVariant `json:"variants"`
}

// CatalogPage - одна страница каталога поставщика
type CatalogPage struct {
	PageNum    int  `json:"page_num"`
	PageSize   int  `json:"page_size"`
	Total      *int `json:"total,omitempty"`
	TotalPages *int `json:"total_pages,omitempty"`
	// FetchedCount - число записей в ответе до отбрасывания и фильтрации
	FetchedCount int                   `json:"fetched_count"`
	Records      []RemoteCatalogRecord `json:"records"`
}

// WorkingSet - дедуплицированный набор записей по нескольким страницам
type WorkingSet struct {
	Records    []RemoteCatalogRecord `json:"records"`
	PageNum    int                   `json:"page_num"`
	PageSize   int                   `json:"page_size"`
	Total      *int                  `json:"total,omitempty"`
	TotalPages *int                  `json:"total_pages,omitempty"`
	HasMore    bool                  `json:"has_more"`
}
