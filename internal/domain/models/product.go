package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Статусы товара в локальном каталоге
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Группы полей, которые можно заблокировать от перезаписи синхронизацией
type FieldGroup string

const (
	FieldPrice       FieldGroup = "price"
	FieldDescription FieldGroup = "description"
	FieldImages      FieldGroup = "images"
	FieldVariants    FieldGroup = "variants"
	// FieldUnlocked - поля без флага блокировки (sku, категория, остатки)
	FieldUnlocked FieldGroup = ""
)

// Имена полей, попадающие в LastChangedFields
const (
	ChangedName        = "name"
	ChangedDescription = "description"
	ChangedSKU         = "sku"
	ChangedCategory    = "category"
	ChangedStock       = "stock"
	ChangedCostPrice   = "cost_price"
	ChangedPrice       = "price"
	ChangedImages      = "images"
	ChangedVariants    = "variants"
)

// LockFlags - флаги блокировки групп полей, выставляемые оператором
type LockFlags struct {
	Price       bool `json:"price"`
	Description bool `json:"description"`
	Images      bool `json:"images"`
	Variants    bool `json:"variants"`
}

// Locked сообщает, заблокирована ли группа полей
func (l LockFlags) Locked(field FieldGroup) bool {
	switch field {
	case FieldPrice:
		return l.Price
	case FieldDescription:
		return l.Description
	case FieldImages:
		return l.Images
	case FieldVariants:
		return l.Variants
	default:
		return false
	}
}

// Product - локальная запись товара.
// ExternalID == nil означает товар, созданный вручную; после привязки
// к поставщику ExternalID не меняется.
type Product struct {
	ID           string          `json:"id"`
	ExternalID   *string         `json:"external_id,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	CategoryName string          `json:"category_name"`
	SKU          string          `json:"sku"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	Stock        *int            `json:"stock,omitempty"`
	Images       []string        `json:"images"`
	Variants     []Variant       `json:"variants"`
	Status       string          `json:"status"`
	SyncEnabled  bool            `json:"sync_enabled"`
	Locks        LockFlags       `json:"locks"`

	LastSyncedAt      *time.Time      `json:"last_synced_at,omitempty"`
	LastChangedFields []string        `json:"last_changed_fields"`
	LastRawPayload    json.RawMessage `json:"last_raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLinked сообщает, привязан ли товар к записи поставщика
func (p *Product) IsLinked() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}

// Variant представляет вариант товара (размер, цвет и т.д.)
type Variant struct {
	ID                string          `json:"id"`
	ExternalVariantID string          `json:"external_variant_id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	Stock             *int            `json:"stock,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
}

// Review - отзыв покупателя, загруженный у поставщика
type Review struct {
	ExternalID string    `json:"external_id"`
	ProductID  string    `json:"product_id"`
	Author     string    `json:"author"`
	Rating     int       `json:"rating"`
	Body       string    `json:"body"`
	Images     []string  `json:"images,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
