package app

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/config"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/metrics"
	postgres "github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/supplier"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/tx"
)

// Container - инициализированные зависимости, общие для API и воркера
type Container struct {
	Storage      *postgres.ProductStorage
	SummaryCache interfaces.CachePort
	PageCache    interfaces.CachePort
	// Messaging равен nil, если Kafka отключена
	Messaging *messaging.KafkaMessaging

	SyncMetrics *metrics.SyncMetrics

	Catalog *services.CatalogService
	Import  *services.ImportService
	Margins *services.MarginService
	Status  *services.StatusService

	ImportDefaults services.ImportOptions

	logger interfaces.LoggerPort
}

// Build подключается к хранилищу, кэшу и Kafka и собирает сервисы
func Build(ctx context.Context, cfg *config.Config, log interfaces.LoggerPort) (*Container, error) {
	c := &Container{logger: log}

	marginPolicy, err := cfg.MarginPolicy()
	if err != nil {
		return nil, err
	}

	connectionStr, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации строки подключения к PostgreSQL: %w", err)
	}

	c.Storage, err = postgres.NewPostgresStorage(ctx, connectionStr)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	log.Info("Хранилище инициализировано")

	if cfg.Postgres.AutoMigrate {
		if err := c.Storage.Migrate(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("ошибка применения схемы: %w", err)
		}
		log.Info("Схема базы данных применена")
	}

	c.PageCache = cache.NewMemoryCache(cfg.Cache.CleanupInterval)
	c.SummaryCache = c.PageCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ошибка инициализации кэша: %w", err)
		}
		c.SummaryCache = redisCache

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = checkCacheConnection(checkCtx, redisCache)
		cancel()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		log.Info("Соединение с Redis проверено")
	}

	var publisher interfaces.MessagingPort
	if cfg.Kafka.Enabled {
		c.Messaging, err = messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ошибка инициализации системы обмена сообщениями: %w", err)
		}
		publisher = c.Messaging

		for _, topic := range []string{cfg.Kafka.EventsTopic, cfg.Kafka.JobsTopic} {
			if err := c.Messaging.CreateTopic(ctx, topic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
				log.Warn("Не удалось создать топик",
					interfaces.LogField{Key: "topic", Value: topic},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}
		log.Info("Система обмена сообщениями инициализирована")
	}

	c.SyncMetrics = metrics.NewSyncMetrics(nil)

	remote := supplier.NewClient(supplier.Options{
		BaseURL:         cfg.Supplier.BaseURL,
		AccessToken:     cfg.Supplier.AccessToken,
		Timeout:         cfg.Supplier.Timeout,
		ReviewsPageSize: cfg.Supplier.ReviewsPageSize,
	}, log)
	if cfg.Supplier.AccessToken == "" {
		log.Warn("Токен API поставщика не задан, запросы будут отклонены")
	}

	txManager := tx.NewTxManager(c.Storage.Pool(), log)
	pricing := policy.NewPricingValidator(marginPolicy)

	c.Status = services.NewStatusService(c.Storage, c.SummaryCache, cfg.Cache.SummaryTTL, cfg.Sync.StaleThreshold, log)
	c.Catalog = services.NewCatalogService(remote, c.Storage, c.PageCache, log, c.SyncMetrics, services.CatalogServiceConfig{
		MinPageSize:    cfg.Sync.MinPageSize,
		MaxPageSize:    cfg.Sync.MaxPageSize,
		PageCacheTTL:   cfg.Cache.PageTTL,
		StaleThreshold: cfg.Sync.StaleThreshold,
	})
	c.Import = services.NewImportService(remote, c.Storage, txManager, pricing, log,
		services.WithEventPublisher(publisher, cfg.Kafka.EventsTopic),
		services.WithSummaryInvalidator(c.Status),
		services.WithMetrics(c.SyncMetrics),
		services.WithReviewPages(cfg.Supplier.ReviewPages),
	)
	c.Margins = services.NewMarginService(c.Storage, txManager, pricing, log, publisher, cfg.Kafka.EventsTopic)

	c.ImportDefaults = services.DefaultImportOptions()
	c.ImportDefaults.DefaultSyncEnabled = cfg.Sync.DefaultSyncEnabled

	log.Info("Сервисы синхронизации каталога инициализированы",
		interfaces.LogField{Key: "min_margin_percent", Value: marginPolicy.MinimumPercent.String()},
		interfaces.LogField{Key: "stale_threshold", Value: cfg.Sync.StaleThreshold.String()},
	)

	return c, nil
}

// Close закрывает соединения с зависимостями в обратном порядке
func (c *Container) Close() {
	if c.Messaging != nil {
		if err := c.Messaging.Close(); err != nil {
			c.logger.Error("Ошибка при закрытии Kafka",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}

	if c.SummaryCache != nil && c.SummaryCache != c.PageCache {
		if err := c.SummaryCache.Close(); err != nil {
			c.logger.Error("Ошибка при закрытии Redis",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
	if c.PageCache != nil {
		_ = c.PageCache.Close()
	}

	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			c.logger.Error("Ошибка при закрытии БД",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
}

// checkCacheConnection проверяет запись и чтение тестового ключа
func checkCacheConnection(ctx context.Context, cacheClient interfaces.CachePort) error {
	testKey := "test:connection"
	testValue := []byte("test-value")

	if err := cacheClient.Set(ctx, testKey, testValue, 10*time.Second); err != nil {
		return fmt.Errorf("ошибка записи в кэш: %w", err)
	}

	value, err := cacheClient.Get(ctx, testKey)
	if err != nil {
		return fmt.Errorf("ошибка чтения из кэша: %w", err)
	}

	if string(value) != string(testValue) {
		return fmt.Errorf("некорректное значение из кэша: получено %s, ожидалось %s",
			string(value), string(testValue))
	}

	return cacheClient.Delete(ctx, testKey)
}
