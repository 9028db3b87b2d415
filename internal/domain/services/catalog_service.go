package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/catalog"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/utils"
)

// CatalogServiceConfig - границы пагинации и срок жизни кэша страниц
type CatalogServiceConfig struct {
	MinPageSize    int
	MaxPageSize    int
	PageCacheTTL   time.Duration
	StaleThreshold time.Duration
}

// ListingRow - строка листинга поставщика со статусом в локальном каталоге
type ListingRow struct {
	Record    models.RemoteCatalogRecord `json:"record"`
	ProductID string                     `json:"product_id,omitempty"`
	Status    models.SyncStatus          `json:"status"`
}

// CatalogService - листинг удаленного каталога и сверка с локальными товарами
type CatalogService struct {
	remote     RemoteAPIClient
	repository ProductRepository
	cache      interfaces.CachePort
	logger     interfaces.LoggerPort
	metrics    SyncMetrics
	cfg        CatalogServiceConfig
	now        Clock
}

// NewCatalogService создает новый экземпляр CatalogService. cache и metrics могут быть nil.
func NewCatalogService(
	remote RemoteAPIClient,
	repository ProductRepository,
	cache interfaces.CachePort,
	logger interfaces.LoggerPort,
	metrics SyncMetrics,
	cfg CatalogServiceConfig,
) *CatalogService {
	if cfg.MinPageSize < 1 {
		cfg.MinPageSize = utils.DefaultMinPageSize
	}
	if cfg.MaxPageSize < cfg.MinPageSize {
		cfg.MaxPageSize = utils.DefaultMaxPageSize
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CatalogService{
		remote:     remote,
		repository: repository,
		cache:      cache,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		now:        utcNow,
	}
}

// ListRemoteCatalog запрашивает одну страницу каталога поставщика.
// ShipTo фильтрует записи на нашей стороне: товары с неизвестной страной
// склада не исключаются. FetchedCount остается равным сырому числу записей.
func (s *CatalogService) ListRemoteCatalog(ctx context.Context, filter models.CatalogFilter) (*models.CatalogPage, error) {
	p := utils.NewPagination(filter.PageNum, filter.PageSize, s.cfg.MinPageSize, s.cfg.MaxPageSize)
	filter.PageNum = p.Page
	filter.PageSize = p.PageSize

	cacheKey := filter.CacheKey()
	if page, ok := s.cachedPage(ctx, cacheKey); ok {
		return page, nil
	}

	payload, err := s.remote.ListCatalog(ctx, filter.ToMap())
	if err != nil {
		s.metrics.IncRemoteError("list_catalog")
		s.logger.ErrorWithContext(ctx, "Ошибка получения каталога поставщика",
			interfaces.LogField{Key: "page", Value: p.Page},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	page, skipped := catalog.ParsePage(payload, p)
	if skipped > 0 {
		s.metrics.AddSkippedRecords(skipped)
		s.logger.WarnWithContext(ctx, "Записи каталога без идентификатора пропущены",
			interfaces.LogField{Key: "page", Value: page.PageNum},
			interfaces.LogField{Key: "skipped", Value: skipped},
		)
	}

	if filter.ShipTo != "" {
		page.Records = FilterShipTo(page.Records, filter.ShipTo)
	}

	s.storePage(ctx, cacheKey, &page)
	return &page, nil
}

// MergeAppend добавляет страницу к рабочему набору с дедупликацией
func (s *CatalogService) MergeAppend(ws models.WorkingSet, page models.CatalogPage) models.WorkingSet {
	return catalog.Merge(ws, page, true)
}

// AnnotateListing сопоставляет записи листинга с локальными товарами одним запросом
func (s *CatalogService) AnnotateListing(ctx context.Context, records []models.RemoteCatalogRecord) ([]ListingRow, error) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ExternalID != "" {
			ids = append(ids, rec.ExternalID)
		}
	}

	states := map[string]models.SyncState{}
	if len(ids) > 0 {
		var err error
		states, err = s.repository.FindByExternalIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	rows := make([]ListingRow, 0, len(records))
	for _, rec := range records {
		row := ListingRow{Record: rec}
		if state, ok := states[rec.ExternalID]; ok {
			row.ProductID = state.ProductID
			row.Status = policy.ClassifyListing(&state, s.cfg.StaleThreshold, now)
		} else {
			row.Status = policy.ClassifyListing(nil, s.cfg.StaleThreshold, now)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FilterShipTo оставляет записи, которые можно отправить в страну country.
// Запись с пустым набором стран склада не исключается.
func FilterShipTo(records []models.RemoteCatalogRecord, country string) []models.RemoteCatalogRecord {
	code := strings.ToUpper(strings.TrimSpace(country))
	if code == "" {
		return records
	}

	out := make([]models.RemoteCatalogRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.WarehouseCountries) == 0 || slices.Contains(rec.WarehouseCountries, code) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *CatalogService) cachedPage(ctx context.Context, key string) (*models.CatalogPage, bool) {
	if s.cache == nil || s.cfg.PageCacheTTL <= 0 {
		return nil, false
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrCacheMiss) {
			s.logger.WarnWithContext(ctx, "Ошибка чтения кэша каталога",
				interfaces.LogField{Key: "key", Value: key},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
		return nil, false
	}

	var page models.CatalogPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (s *CatalogService) storePage(ctx context.Context, key string, page *models.CatalogPage) {
	if s.cache == nil || s.cfg.PageCacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.PageCacheTTL); err != nil {
		s.logger.WarnWithContext(ctx, "Ошибка записи кэша каталога",
			interfaces.LogField{Key: "key", Value: key},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// SetClock подменяет источник времени
func (s *CatalogService) SetClock(now Clock) {
	if now != nil {
		s.now = now
	}
}
