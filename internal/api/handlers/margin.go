package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"
)

// MarginManager - явные изменения цены оператором
type MarginManager interface {
	SetMarginPercent(ctx context.Context, productID string, percent decimal.Decimal, applyToVariants bool, actor models.Actor) (*services.MarginResult, error)
	UpdateSellingPrice(ctx context.Context, productID string, variantID string, selling decimal.Decimal, actor models.Actor) (*services.MarginResult, error)
	MarginLog(ctx context.Context, productID string, limit int) ([]models.MarginLogEntry, error)
}

// MarginHandler обработчик запросов ценообразования
type MarginHandler struct {
	margins MarginManager
	logger  interfaces.LoggerPort
}

func NewMarginHandler(margins MarginManager, logger interfaces.LoggerPort) *MarginHandler {
	return &MarginHandler{
		margins: margins,
		logger:  logger,
	}
}

type setMarginRequest struct {
	Percent         *decimal.Decimal `json:"percent"`
	ApplyToVariants bool             `json:"apply_to_variants"`
}

// SetMargin пересчитывает цену продажи по проценту наценки
func (h *MarginHandler) SetMargin(w http.ResponseWriter, r *http.Request) {
	var req setMarginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Percent == nil {
		badRequest(w, r, "Не указан процент наценки")
		return
	}

	result, err := h.margins.SetMarginPercent(r.Context(), chi.URLParam(r, "id"), *req.Percent, req.ApplyToVariants, actorFrom(r))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка изменения наценки", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result, nil)
}

type updatePriceRequest struct {
	SellingPrice *decimal.Decimal `json:"selling_price"`
	VariantID    string           `json:"variant_id,omitempty"`
}

// UpdatePrice задает цену продажи товара или варианта
func (h *MarginHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.SellingPrice == nil {
		badRequest(w, r, "Не указана цена продажи")
		return
	}

	result, err := h.margins.UpdateSellingPrice(r.Context(), chi.URLParam(r, "id"), req.VariantID, *req.SellingPrice, actorFrom(r))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка изменения цены", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result, nil)
}

// MarginLog возвращает журнал изменений цены, новые записи первыми
func (h *MarginHandler) MarginLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.margins.MarginLog(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка получения журнала наценки", err)
		return
	}

	writeJSON(w, r, http.StatusOK, entries, nil)
}
