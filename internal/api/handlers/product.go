package handlers

import (
	"context"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// ProductLister - постраничное чтение локального каталога
type ProductLister interface {
	ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, int, error)
}

// StatusReporter - классификация товаров по состоянию синхронизации
type StatusReporter interface {
	Classify(product *models.Product) models.SyncStatus
	ClassifyByID(ctx context.Context, productID string) (*models.Product, models.SyncStatus, error)
	Summary(ctx context.Context) (*models.SyncSummary, error)
}

// ProductHandler обработчик запросов к локальным товарам
type ProductHandler struct {
	products ProductLister
	status   StatusReporter
	logger   interfaces.LoggerPort
}

// NewProductHandler создает новый обработчик продуктов
func NewProductHandler(products ProductLister, status StatusReporter, logger interfaces.LoggerPort) *ProductHandler {
	return &ProductHandler{
		products: products,
		status:   status,
		logger:   logger,
	}
}

type productView struct {
	*models.Product
	SyncStatus models.SyncStatus `json:"sync_status"`
}

// ListProducts возвращает страницу локальных товаров с состоянием синхронизации
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	p := utils.NewPagination(queryInt(r, "page", 1), queryInt(r, "page_size", 0), 1, 100)

	products, total, err := h.products.ListProducts(r.Context(), p.PageSize, p.GetOffset())
	if err != nil {
		writeError(w, r, h.logger, "Ошибка получения списка продуктов", err)
		return
	}
	p.SetTotals(&total, nil, len(products))

	views := make([]productView, 0, len(products))
	for _, product := range products {
		views = append(views, productView{Product: product, SyncStatus: h.status.Classify(product)})
	}

	writeJSON(w, r, http.StatusOK, views, p)
}

// GetProduct возвращает товар и его состояние синхронизации
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, status, err := h.status.ClassifyByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка получения продукта", err)
		return
	}

	writeJSON(w, r, http.StatusOK, productView{Product: product, SyncStatus: status}, nil)
}

// Summary возвращает количество товаров в каждом состоянии синхронизации
func (h *ProductHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.status.Summary(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Ошибка расчета сводки статусов", err)
		return
	}

	writeJSON(w, r, http.StatusOK, summary, nil)
}
