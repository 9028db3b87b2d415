package services

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
)

// RemoteAPIClient - клиент API поставщика. Возвращает декодированный ответ
// или *utils.RemoteAPIError. Подпись запросов, ретраи и таймауты - его забота.
type RemoteAPIClient interface {
	ListCatalog(ctx context.Context, params map[string]interface{}) (map[string]any, error)
	GetDetail(ctx context.Context, externalID string) (map[string]any, error)
	GetVariants(ctx context.Context, externalID string) (map[string]any, error)
	GetStock(ctx context.Context, variantID string) (map[string]any, error)
	GetReviews(ctx context.Context, externalID string, page int) (map[string]any, error)
}

// ProductRepository - локальное хранилище товаров и журнала наценки.
// Если в контексте открыта транзакция (pkg/tx), методы выполняются в ней.
type ProductRepository interface {
	// GetByID возвращает utils.ErrProductNotFound, если товара нет
	GetByID(ctx context.Context, id string) (*models.Product, error)
	// GetByExternalID блокирует строку (FOR UPDATE), если вызван в транзакции.
	// Возвращает utils.ErrProductNotFound, если товар не привязан.
	GetByExternalID(ctx context.Context, externalID string) (*models.Product, error)
	// FindByExternalIDs - пакетный поиск для сверки листинга с локальным каталогом
	FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]models.SyncState, error)
	// SaveProduct создает или обновляет товар
	SaveProduct(ctx context.Context, product *models.Product) error
	AppendMarginLog(ctx context.Context, entries ...models.MarginLogEntry) error
	ListMarginLog(ctx context.Context, productID string, limit int) ([]models.MarginLogEntry, error)
	// SaveReviews сохраняет отзывы, пропуская уже известные; возвращает число новых
	SaveReviews(ctx context.Context, productID string, reviews []models.Review) (int, error)
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
}

// SyncMetrics - метрики синхронизации
type SyncMetrics interface {
	ObserveImport(outcome string, duration time.Duration)
	IncRemoteError(operation string)
	IncPriceDeviation()
	AddSkippedRecords(n int)
	ObserveBatch(imported, skipped, errors int)
}

// Исходы импорта для метрик и событий
const (
	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

type noopMetrics struct{}

func (noopMetrics) ObserveImport(string, time.Duration) {}
func (noopMetrics) IncRemoteError(string)               {}
func (noopMetrics) IncPriceDeviation()                  {}
func (noopMetrics) AddSkippedRecords(int)               {}
func (noopMetrics) ObserveBatch(int, int, int)          {}

// Clock возвращает текущее время; подменяется в тестах
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
