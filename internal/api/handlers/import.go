package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Importer - операции импорта и узкой синхронизации
type Importer interface {
	ImportByExternalID(ctx context.Context, externalID string, opts services.ImportOptions) (*services.ImportResult, error)
	ImportBatch(ctx context.Context, externalIDs []string, opts services.ImportOptions) (*services.BatchResult, error)
	SyncMedia(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
	SyncStock(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
	SyncReviews(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
}

// ImportHandler обработчик запросов импорта
type ImportHandler struct {
	importer Importer
	defaults services.ImportOptions
	logger   interfaces.LoggerPort
}

// NewImportHandler создает обработчик. defaults - параметры, которые запрос может переопределить.
func NewImportHandler(importer Importer, defaults services.ImportOptions, logger interfaces.LoggerPort) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		defaults: defaults,
		logger:   logger,
	}
}

type importRequest struct {
	ExternalIDs     []string `json:"external_ids,omitempty"`
	Force           bool     `json:"force"`
	RespectLocks    *bool    `json:"respect_locks,omitempty"`
	RespectSyncFlag *bool    `json:"respect_sync_flag,omitempty"`
}

// decodeImportRequest разбирает тело запроса; пустое тело допустимо
func decodeImportRequest(r *http.Request) (importRequest, error) {
	var req importRequest
	if r.Body == nil {
		return req, nil
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

func (h *ImportHandler) options(r *http.Request, req importRequest) services.ImportOptions {
	opts := h.defaults
	opts.Actor = actorFrom(r)
	opts.Force = req.Force
	opts.ThrowOnFailure = true
	if req.RespectLocks != nil {
		opts.RespectLocks = *req.RespectLocks
	}
	if req.RespectSyncFlag != nil {
		opts.RespectSyncFlag = *req.RespectSyncFlag
	}
	return opts
}

// ImportProduct импортирует или обновляет один товар по идентификатору поставщика
func (h *ImportHandler) ImportProduct(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	req, err := decodeImportRequest(r)
	if err != nil {
		badRequest(w, r, "Некорректное тело запроса")
		return
	}

	result, err := h.importer.ImportByExternalID(r.Context(), externalID, h.options(r, req))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка импорта товара", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, result, nil)
}

// ImportBatch импортирует список товаров; ошибка одного товара не прерывает пакет
func (h *ImportHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeImportRequest(r)
	if err != nil {
		badRequest(w, r, "Некорректное тело запроса")
		return
	}
	if len(req.ExternalIDs) == 0 {
		badRequest(w, r, "Список external_ids пуст")
		return
	}

	result, err := h.importer.ImportBatch(r.Context(), req.ExternalIDs, h.options(r, req))
	if err != nil {
		writeError(w, r, h.logger, "Ошибка пакетного импорта", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result, nil)
}

// SyncMedia обновляет только изображения товара
func (h *ImportHandler) SyncMedia(w http.ResponseWriter, r *http.Request) {
	h.narrowSync(w, r, h.importer.SyncMedia, "Ошибка синхронизации изображений")
}

// SyncStock обновляет только остатки товара
func (h *ImportHandler) SyncStock(w http.ResponseWriter, r *http.Request) {
	h.narrowSync(w, r, h.importer.SyncStock, "Ошибка синхронизации остатков")
}

// SyncReviews загружает новые отзывы о товаре
func (h *ImportHandler) SyncReviews(w http.ResponseWriter, r *http.Request) {
	h.narrowSync(w, r, h.importer.SyncReviews, "Ошибка синхронизации отзывов")
}

type narrowSyncFunc func(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)

func (h *ImportHandler) narrowSync(w http.ResponseWriter, r *http.Request, sync narrowSyncFunc, message string) {
	productID := chi.URLParam(r, "id")
	req, err := decodeImportRequest(r)
	if err != nil {
		badRequest(w, r, "Некорректное тело запроса")
		return
	}

	result, err := sync(r.Context(), productID, h.options(r, req))
	if err != nil {
		writeError(w, r, h.logger, message, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result, nil)
}
