package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/go-chi/render"
)

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string      `json:"error"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data, meta interface{}) {
	render.Status(r, status)
	render.JSON(w, r, response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{
		Error:   "bad_request",
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// writeError отображает доменные ошибки в HTTP ответ
func writeError(w http.ResponseWriter, r *http.Request, logger interfaces.LoggerPort, message string, err error) {
	resp := errorResponse{Message: message}

	var violation *utils.MarginViolation
	var apiErr *utils.RemoteAPIError

	switch {
	case errors.As(err, &violation):
		resp.Code, resp.Error = http.StatusUnprocessableEntity, "margin_violation"
		resp.Message = violation.Error()
		resp.Details = map[string]string{
			"cost":           violation.Cost.String(),
			"selling_price":  violation.Selling.String(),
			"min_selling":    violation.MinSelling.String(),
			"min_margin_pct": violation.MinPercent.String(),
		}
	case errors.As(err, &apiErr):
		resp.Code, resp.Error = http.StatusBadGateway, "supplier_error"
		resp.Message = apiErr.Error()
		resp.Details = map[string]int{"status": apiErr.Status, "provider_code": apiErr.ProviderCode}
	case errors.Is(err, utils.ErrExternalIDMismatch):
		resp.Code, resp.Error = http.StatusBadGateway, "supplier_mismatch"
		resp.Message = err.Error()
	case errors.Is(err, utils.ErrProductNotFound), errors.Is(err, utils.ErrVariantNotFound):
		resp.Code, resp.Error = http.StatusNotFound, "not_found"
		resp.Message = err.Error()
	case errors.Is(err, utils.ErrProductNotLinked):
		resp.Code, resp.Error = http.StatusConflict, "not_linked"
		resp.Message = err.Error()
	case errors.Is(err, utils.ErrNoCostPrice):
		resp.Code, resp.Error = http.StatusUnprocessableEntity, "no_cost_price"
		resp.Message = err.Error()
	case errors.Is(err, utils.ErrInvalidPercent), errors.Is(err, utils.ErrInvalidPrice), errors.Is(err, utils.ErrMissingExternalID):
		resp.Code, resp.Error = http.StatusBadRequest, "bad_request"
		resp.Message = err.Error()
	default:
		resp.Code, resp.Error = http.StatusInternalServerError, "internal_error"
	}

	if resp.Code >= http.StatusInternalServerError {
		logger.ErrorWithContext(r.Context(), message, interfaces.LogField{Key: "error", Value: err.Error()})
	} else {
		logger.WarnWithContext(r.Context(), message, interfaces.LogField{Key: "error", Value: err.Error()})
	}

	render.Status(r, resp.Code)
	render.JSON(w, r, resp)
}

// actorFrom возвращает оператора, выполняющего запрос
func actorFrom(r *http.Request) models.Actor {
	actorID, _ := r.Context().Value(interfaces.ActorIDKey).(string)
	return models.Actor{Type: models.ActorManual, ID: actorID}
}

// queryInt читает целый параметр запроса; при ошибке возвращает def
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
