package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
)

// SummaryCacheKey - ключ кэша сводки статусов
const SummaryCacheKey = "sync:summary"

// StatusService классифицирует товары и считает сводку по состояниям синхронизации
type StatusService struct {
	repository ProductRepository
	cache      interfaces.CachePort
	cacheTTL   time.Duration
	threshold  time.Duration
	logger     interfaces.LoggerPort
	now        Clock
}

// NewStatusService создает новый экземпляр StatusService.
// cache может быть nil: тогда сводка всегда считается заново.
func NewStatusService(
	repository ProductRepository,
	cache interfaces.CachePort,
	cacheTTL time.Duration,
	threshold time.Duration,
	logger interfaces.LoggerPort,
) *StatusService {
	return &StatusService{
		repository: repository,
		cache:      cache,
		cacheTTL:   cacheTTL,
		threshold:  threshold,
		logger:     logger,
		now:        utcNow,
	}
}

// SetClock подменяет источник времени
func (s *StatusService) SetClock(now Clock) {
	if now != nil {
		s.now = now
	}
}

// Threshold возвращает действующий порог устаревания
func (s *StatusService) Threshold() time.Duration {
	if s.threshold <= 0 {
		return policy.DefaultStaleThreshold
	}
	return s.threshold
}

// Classify возвращает состояние синхронизации товара
func (s *StatusService) Classify(product *models.Product) models.SyncStatus {
	return policy.Classify(product.State(), s.threshold, s.now())
}

// ClassifyByID загружает товар и классифицирует его
func (s *StatusService) ClassifyByID(ctx context.Context, productID string) (*models.Product, models.SyncStatus, error) {
	product, err := s.repository.GetByID(ctx, productID)
	if err != nil {
		return nil, "", err
	}
	return product, s.Classify(product), nil
}

// Summary считает количество товаров в каждом состоянии.
// Результат кэшируется на cacheTTL и сбрасывается после импорта.
func (s *StatusService) Summary(ctx context.Context) (*models.SyncSummary, error) {
	if summary, ok := s.cached(ctx); ok {
		return summary, nil
	}

	states, err := s.repository.ListSyncStates(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &models.SyncSummary{
		Counts:     make(map[models.SyncStatus]int),
		Total:      len(states),
		ComputedAt: now,
	}
	for _, state := range states {
		summary.Counts[policy.Classify(state, s.threshold, now)]++
	}

	s.store(ctx, summary)
	return summary, nil
}

// Invalidate сбрасывает кэш сводки
func (s *StatusService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, SummaryCacheKey)
}

func (s *StatusService) cached(ctx context.Context) (*models.SyncSummary, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	data, err := s.cache.Get(ctx, SummaryCacheKey)
	if err != nil {
		if !errors.Is(err, interfaces.ErrCacheMiss) {
			s.logger.WarnWithContext(ctx, "Ошибка чтения кэша сводки",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
		return nil, false
	}

	var summary models.SyncSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false
	}
	return &summary, true
}

func (s *StatusService) store(ctx context.Context, summary *models.SyncSummary) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, SummaryCacheKey, data, s.cacheTTL); err != nil {
		s.logger.WarnWithContext(ctx, "Ошибка записи кэша сводки",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
