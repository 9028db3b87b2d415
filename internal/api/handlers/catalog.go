package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/go-chi/render"
)

// CatalogLister - листинг каталога поставщика
type CatalogLister interface {
	ListRemoteCatalog(ctx context.Context, filter models.CatalogFilter) (*models.CatalogPage, error)
	MergeAppend(ws models.WorkingSet, page models.CatalogPage) models.WorkingSet
	AnnotateListing(ctx context.Context, records []models.RemoteCatalogRecord) ([]services.ListingRow, error)
}

// CatalogHandler обработчик запросов к каталогу поставщика
type CatalogHandler struct {
	catalog CatalogLister
	logger  interfaces.LoggerPort
}

func NewCatalogHandler(catalog CatalogLister, logger interfaces.LoggerPort) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

type pageMeta struct {
	PageNum      int  `json:"page_num"`
	PageSize     int  `json:"page_size"`
	Total        *int `json:"total,omitempty"`
	TotalPages   *int `json:"total_pages,omitempty"`
	FetchedCount int  `json:"fetched_count"`
}

// ListRemote возвращает страницу каталога поставщика со статусами локальных товаров
func (h *CatalogHandler) ListRemote(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	page, err := h.catalog.ListRemoteCatalog(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Ошибка получения каталога поставщика", err)
		return
	}

	rows, err := h.catalog.AnnotateListing(r.Context(), page.Records)
	if err != nil {
		writeError(w, r, h.logger, "Ошибка сверки каталога с локальными товарами", err)
		return
	}

	writeJSON(w, r, http.StatusOK, rows, pageMeta{
		PageNum:      page.PageNum,
		PageSize:     page.PageSize,
		Total:        page.Total,
		TotalPages:   page.TotalPages,
		FetchedCount: page.FetchedCount,
	})
}

type loadMoreRequest struct {
	Filter     models.CatalogFilter `json:"filter"`
	WorkingSet models.WorkingSet    `json:"working_set"`
}

// LoadMore запрашивает следующую страницу и добавляет ее к рабочему набору клиента
func (h *CatalogHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	var req loadMoreRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "Некорректное тело запроса")
		return
	}

	if req.Filter.PageNum < 1 {
		req.Filter.PageNum = req.WorkingSet.PageNum + 1
	}
	if req.Filter.PageSize < 1 {
		req.Filter.PageSize = req.WorkingSet.PageSize
	}

	page, err := h.catalog.ListRemoteCatalog(r.Context(), req.Filter)
	if err != nil {
		writeError(w, r, h.logger, "Ошибка получения каталога поставщика", err)
		return
	}

	writeJSON(w, r, http.StatusOK, h.catalog.MergeAppend(req.WorkingSet, *page), nil)
}

func filterFromQuery(r *http.Request) (models.CatalogFilter, error) {
	q := r.URL.Query()
	filter := models.CatalogFilter{
		Keyword:     q.Get("keyword"),
		CategoryID:  q.Get("category_id"),
		ProductSKU:  q.Get("sku"),
		ProductType: q.Get("product_type"),
		CountryCode: q.Get("country_code"),
		ShipTo:      q.Get("ship_to"),
		PageNum:     queryInt(r, "page", 1),
		PageSize:    queryInt(r, "page_size", 0),
	}

	for name, target := range map[string]*float64{"min_price": &filter.MinPrice, "max_price": &filter.MaxPrice} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return filter, fmt.Errorf("invalid query parameter %s", name)
		}
		*target = value
	}

	return filter, nil
}
