package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/catalog"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/tx"
)

// ImportOptions - параметры импорта. Нулевое значение не является
// разумным значением по умолчанию, используйте DefaultImportOptions.
type ImportOptions struct {
	// RespectSyncFlag - пропускать товары с выключенной синхронизацией
	RespectSyncFlag bool
	// DefaultSyncEnabled - значение sync_enabled для впервые привязанного товара
	DefaultSyncEnabled bool
	// ShipToCountry - подсказка для листинга; при импорте одного товара не фильтрует
	ShipToCountry string
	// RespectLocks - учитывать флаги блокировки полей
	RespectLocks bool
	// Force - ручной повторный импорт в обход флагов
	Force bool
	// ThrowOnFailure - вернуть ошибку вызывающему вместо записи ее в результат
	ThrowOnFailure bool
	Actor          models.Actor
}

// DefaultImportOptions - параметры для автоматической синхронизации
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		RespectSyncFlag:    true,
		DefaultSyncEnabled: true,
		RespectLocks:       true,
		ThrowOnFailure:     true,
		Actor:              models.SystemActor(),
	}
}

// ImportResult - итог импорта одного товара
type ImportResult struct {
	ExternalID    string           `json:"external_id"`
	Outcome       string           `json:"outcome"`
	Product       *models.Product  `json:"product,omitempty"`
	Created       bool             `json:"created"`
	ChangedFields []string         `json:"changed_fields"`
	Deviations    []PriceDeviation `json:"price_deviations,omitempty"`
	ReviewsSaved  int              `json:"reviews_saved,omitempty"`
	Err           error            `json:"-"`
}

// BatchFailure - ошибка по одному идентификатору в пакетном импорте
type BatchFailure struct {
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// BatchResult - агрегированный итог пакетного импорта
type BatchResult struct {
	Imported    int            `json:"imported"`
	Skipped     int            `json:"skipped"`
	Errors      int            `json:"errors"`
	ImportedIDs []string       `json:"imported_ids"`
	SkippedIDs  []string       `json:"skipped_ids"`
	Failures    []BatchFailure `json:"failures"`
}

// SummaryInvalidator сбрасывает кэш сводки статусов после записи
type SummaryInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ImportService сверяет карточки поставщика с локальным каталогом
type ImportService struct {
	remote      RemoteAPIClient
	repository  ProductRepository
	txManager   tx.TxManager
	pricing     *policy.PricingValidator
	logger      interfaces.LoggerPort
	publisher   interfaces.MessagingPort
	eventsTopic string
	summary     SummaryInvalidator
	metrics     SyncMetrics
	reviewPages int
	now         Clock
}

// ImportServiceOption настраивает необязательные зависимости ImportService
type ImportServiceOption func(*ImportService)

// WithEventPublisher включает публикацию событий синхронизации в topic
func WithEventPublisher(publisher interfaces.MessagingPort, topic string) ImportServiceOption {
	return func(s *ImportService) {
		s.publisher = publisher
		s.eventsTopic = topic
	}
}

// WithSummaryInvalidator сбрасывает сводку статусов после каждого импорта
func WithSummaryInvalidator(summary SummaryInvalidator) ImportServiceOption {
	return func(s *ImportService) {
		s.summary = summary
	}
}

func WithMetrics(metrics SyncMetrics) ImportServiceOption {
	return func(s *ImportService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithReviewPages ограничивает число страниц отзывов за один вызов SyncReviews
func WithReviewPages(pages int) ImportServiceOption {
	return func(s *ImportService) {
		if pages > 0 {
			s.reviewPages = pages
		}
	}
}

func WithClock(now Clock) ImportServiceOption {
	return func(s *ImportService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewImportService создает новый экземпляр ImportService
func NewImportService(
	remote RemoteAPIClient,
	repository ProductRepository,
	txManager tx.TxManager,
	pricing *policy.PricingValidator,
	logger interfaces.LoggerPort,
	opts ...ImportServiceOption,
) *ImportService {
	s := &ImportService{
		remote:      remote,
		repository:  repository,
		txManager:   txManager,
		pricing:     pricing,
		logger:      logger,
		metrics:     noopMetrics{},
		reviewPages: 1,
		now:         utcNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportByExternalID загружает карточку поставщика и сверяет ее с локальным товаром.
//
// Запрос к поставщику выполняется до открытия транзакции; строка товара
// читается с блокировкой внутри транзакции. Ошибка поставщика возвращается
// без изменений при ThrowOnFailure, иначе попадает в ImportResult.Err.
func (s *ImportService) ImportByExternalID(ctx context.Context, externalID string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	id := strings.TrimSpace(externalID)
	result := &ImportResult{ExternalID: id, ChangedFields: []string{}}

	if id == "" {
		return s.fail(ctx, result, opts, start, utils.ErrMissingExternalID)
	}

	payload, err := s.remote.GetDetail(ctx, id)
	if err != nil {
		s.metrics.IncRemoteError("get_detail")
		return s.fail(ctx, result, opts, start, err)
	}

	detail, err := catalog.ExtractDetail(payload)
	if err != nil {
		s.logger.WarnWithContext(ctx, "В ответе поставщика нет идентификатора товара",
			interfaces.LogField{Key: "external_id", Value: id},
		)
		return s.fail(ctx, result, opts, start, err)
	}
	if detail.ExternalID != id {
		s.logger.WarnWithContext(ctx, "Поставщик вернул карточку другого товара",
			interfaces.LogField{Key: "external_id", Value: id},
			interfaces.LogField{Key: "payload_external_id", Value: detail.ExternalID},
		)
		return s.fail(ctx, result, opts, start, fmt.Errorf("%w: requested %q, got %q", utils.ErrExternalIDMismatch, id, detail.ExternalID))
	}

	if len(detail.Variants) == 0 {
		variantsPayload, err := s.remote.GetVariants(ctx, id)
		if err != nil {
			s.metrics.IncRemoteError("get_variants")
			return s.fail(ctx, result, opts, start, err)
		}
		detail.Variants = catalog.ExtractVariants(variantsPayload)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return s.fail(ctx, result, opts, start, fmt.Errorf("failed to encode raw payload: %w", err))
	}

	var outcome reconcileOutcome
	persist := func() error {
		return s.txManager.Do(ctx, func(txCtx context.Context) error {
			existing, err := s.repository.GetByExternalID(txCtx, id)
			if err != nil {
				if !errors.Is(err, utils.ErrProductNotFound) {
					return fmt.Errorf("failed to load product: %w", err)
				}
				existing = nil
			}

			outcome = reconcile(reconcileInput{
				existing: existing,
				detail:   detail,
				raw:      raw,
				opts:     opts,
				now:      s.now(),
			}, s.pricing)

			if outcome.skipped {
				return nil
			}

			if err := s.repository.SaveProduct(txCtx, outcome.product); err != nil {
				return fmt.Errorf("failed to save product: %w", err)
			}

			if len(outcome.marginLog) > 0 {
				if err := s.repository.AppendMarginLog(txCtx, outcome.marginLog...); err != nil {
					return fmt.Errorf("failed to append margin log: %w", err)
				}
			}

			return nil
		})
	}

	err = persist()
	if errors.Is(err, utils.ErrExternalIDTaken) {
		// параллельный импорт успел привязать товар первым: перечитываем и применяем поверх
		s.logger.WarnWithContext(ctx, "Товар привязан параллельным импортом, повторяем сверку",
			interfaces.LogField{Key: "external_id", Value: id},
		)
		err = persist()
	}
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}

	result.Product = outcome.product
	if outcome.skipped {
		result.Outcome = OutcomeSkipped
		s.metrics.ObserveImport(OutcomeSkipped, time.Since(start))
		s.logger.InfoWithContext(ctx, "Синхронизация товара выключена, импорт пропущен",
			interfaces.LogField{Key: "external_id", Value: id},
			interfaces.LogField{Key: "product_id", Value: outcome.product.ID},
		)
		s.publish(ctx, id, messaging.SyncEvent{
			Type:       messaging.ProductSkippedEvent,
			ProductID:  outcome.product.ID,
			ExternalID: id,
		})
		return result, nil
	}

	result.Outcome = OutcomeImported
	result.Created = outcome.created
	result.ChangedFields = outcome.changed
	result.Deviations = outcome.deviations

	for _, dev := range outcome.deviations {
		s.metrics.IncPriceDeviation()
		s.logger.WarnWithContext(ctx, "Цена поставщика нарушает минимальную наценку, сохранена прежняя себестоимость",
			interfaces.LogField{Key: "external_id", Value: id},
			interfaces.LogField{Key: "variant_id", Value: dev.VariantID},
			interfaces.LogField{Key: "remote_cost", Value: dev.RemoteCost.String()},
			interfaces.LogField{Key: "selling", Value: dev.Selling.String()},
			interfaces.LogField{Key: "min_selling", Value: dev.MinSelling.String()},
		)
	}

	s.metrics.ObserveImport(OutcomeImported, time.Since(start))
	s.afterWrite(ctx)
	s.publish(ctx, id, messaging.SyncEvent{
		Type:          messaging.ProductSyncedEvent,
		ProductID:     outcome.product.ID,
		ExternalID:    id,
		Created:       outcome.created,
		ChangedFields: outcome.changed,
	})

	s.logger.InfoWithContext(ctx, "Товар синхронизирован",
		interfaces.LogField{Key: "external_id", Value: id},
		interfaces.LogField{Key: "product_id", Value: outcome.product.ID},
		interfaces.LogField{Key: "created", Value: outcome.created},
		interfaces.LogField{Key: "changed_fields", Value: outcome.changed},
	)

	return result, nil
}

// ImportBatch импортирует идентификаторы последовательно, каждый в своей транзакции.
// Ошибка одного товара не прерывает пакет. Отмена контекста проверяется
// только между товарами; начатый товар доводится до конца.
func (s *ImportService) ImportBatch(ctx context.Context, externalIDs []string, opts ImportOptions) (*BatchResult, error) {
	result := &BatchResult{
		ImportedIDs: []string{},
		SkippedIDs:  []string{},
		Failures:    []BatchFailure{},
	}

	itemOpts := opts
	itemOpts.ThrowOnFailure = false

	for i, id := range externalIDs {
		if err := ctx.Err(); err != nil {
			s.logger.WarnWithContext(ctx, "Пакетный импорт остановлен",
				interfaces.LogField{Key: "processed", Value: i},
				interfaces.LogField{Key: "total", Value: len(externalIDs)},
			)
			s.finishBatch(ctx, result)
			return result, err
		}

		item, err := s.ImportByExternalID(context.WithoutCancel(ctx), id, itemOpts)
		if err == nil && item != nil && item.Err != nil {
			err = item.Err
		}

		switch {
		case err != nil:
			result.Errors++
			result.Failures = append(result.Failures, BatchFailure{
				ExternalID: id,
				Error:      err.Error(),
				Err:        err,
			})
		case item.Outcome == OutcomeSkipped:
			result.Skipped++
			result.SkippedIDs = append(result.SkippedIDs, item.ExternalID)
		default:
			result.Imported++
			result.ImportedIDs = append(result.ImportedIDs, item.ExternalID)
		}
	}

	s.finishBatch(ctx, result)
	return result, nil
}

func (s *ImportService) finishBatch(ctx context.Context, result *BatchResult) {
	s.metrics.ObserveBatch(result.Imported, result.Skipped, result.Errors)
	s.publish(ctx, "", messaging.SyncEvent{
		Type:     messaging.BatchFinishedEvent,
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
	})
	s.logger.InfoWithContext(ctx, "Пакетный импорт завершен",
		interfaces.LogField{Key: "imported", Value: result.Imported},
		interfaces.LogField{Key: "skipped", Value: result.Skipped},
		interfaces.LogField{Key: "errors", Value: result.Errors},
	)
}

// fail фиксирует ошибку импорта. При ThrowOnFailure ошибка возвращается
// вызывающему, иначе кладется в результат.
func (s *ImportService) fail(ctx context.Context, result *ImportResult, opts ImportOptions, start time.Time, err error) (*ImportResult, error) {
	result.Outcome = OutcomeError
	result.Err = err
	s.metrics.ObserveImport(OutcomeError, time.Since(start))

	s.logger.ErrorWithContext(ctx, "Ошибка импорта товара",
		interfaces.LogField{Key: "external_id", Value: result.ExternalID},
		interfaces.LogField{Key: "error", Value: err.Error()},
	)

	if opts.ThrowOnFailure {
		return nil, err
	}
	return result, nil
}

// afterWrite сбрасывает сводку статусов; ошибка кэша не влияет на результат импорта
func (s *ImportService) afterWrite(ctx context.Context) {
	if s.summary == nil {
		return
	}
	if err := s.summary.Invalidate(ctx); err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось сбросить кэш сводки статусов",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// publish отправляет событие после фиксации транзакции; ошибка только логируется
func (s *ImportService) publish(ctx context.Context, key string, event messaging.SyncEvent) {
	if s.publisher == nil || s.eventsTopic == "" {
		return
	}
	event.OccurredAt = s.now()

	data, err := event.Marshal()
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Не удалось сериализовать событие",
			interfaces.LogField{Key: "event", Value: event.Type},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return
	}

	if err := s.publisher.Publish(ctx, s.eventsTopic, key, data); err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось опубликовать событие",
			interfaces.LogField{Key: "event", Value: event.Type},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
