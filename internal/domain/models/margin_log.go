package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarginEventKind - тип записи журнала наценки
type MarginEventKind string

const (
	MarginUpdated        MarginEventKind = "margin_updated"
	Activated            MarginEventKind = "activated"
	VariantMarginUpdated MarginEventKind = "variant_margin_updated"
)

// Типы инициаторов изменений
const (
	ActorSystem = "system"
	ActorManual = "manual"
	ActorJob    = "job"
)

// Actor - кто инициировал изменение цены или статуса
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// SystemActor - инициатор по умолчанию для автоматической синхронизации
func SystemActor() Actor {
	return Actor{Type: ActorSystem}
}

// MarginLogEntry - неизменяемая запись журнала изменения цены или активации.
// Записи только добавляются, приложение их не удаляет и не меняет.
type MarginLogEntry struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	VariantID *string          `json:"variant_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Kind      MarginEventKind  `json:"kind"`
	Actor     Actor            `json:"actor"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
	OldStatus string           `json:"old_status,omitempty"`
	NewStatus string           `json:"new_status,omitempty"`
	Note      string           `json:"note,omitempty"`
}
