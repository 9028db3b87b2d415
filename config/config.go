package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		BodyLimit       int // максимальный размер запроса в МБ
	}

	Postgres struct {
		Host        string
		Port        int
		User        string
		Password    string
		DBName      string
		SSLMode     string
		Timeout     time.Duration
		PoolSize    int  // размер пула соединений
		AutoMigrate bool // применять схему при старте
	}

	Redis struct {
		Enabled  bool // без Redis сводка статусов кэшируется в памяти процесса
		Host     string
		Port     int
		Password string
		DB       int
		PoolSize int
		Prefix   string
	}

	Cache struct {
		PageTTL         time.Duration // страницы листинга поставщика
		SummaryTTL      time.Duration // сводка статусов синхронизации
		CleanupInterval time.Duration // очистка кэша в памяти
	}

	Kafka struct {
		Enabled     bool
		Brokers     []string
		GroupID     string
		EventsTopic string
		JobsTopic   string
		Partitions  int
		Replication int
	}

	Metrics struct {
		Enabled bool
		Port    int
	}

	Security struct {
		JWTSecret        string
		JWTIssuer        string
		CORSAllowOrigins []string
	}

	Supplier struct {
		BaseURL         string
		AccessToken     string
		Timeout         time.Duration
		ReviewsPageSize int
		ReviewPages     int // сколько страниц отзывов читать за один вызов
	}

	Sync struct {
		StaleThreshold     time.Duration
		DefaultSyncEnabled bool
		MinPageSize        int
		MaxPageSize        int
	}

	Pricing struct {
		MinMarginPercent  string
		CategoryOverrides map[string]string
	}
}

// Load загружает конфигурацию из .env, файла и переменных окружения
func Load(configPath string) (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("../../config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Чтение конфигурационного файла
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults(v)
	if err := bindEnvVariables(v); err != nil {
		return nil, fmt.Errorf("ошибка привязки переменных окружения: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = v.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	if _, err := cfg.MarginPolicy(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MarginPolicy собирает политику минимальной наценки из секции pricing
func (c *Config) MarginPolicy() (policy.MarginPolicy, error) {
	minimum, err := decimal.NewFromString(c.Pricing.MinMarginPercent)
	if err != nil {
		return policy.MarginPolicy{}, fmt.Errorf("invalid pricing.minMarginPercent %q: %w", c.Pricing.MinMarginPercent, err)
	}

	overrides := make(map[string]decimal.Decimal, len(c.Pricing.CategoryOverrides))
	for category, raw := range c.Pricing.CategoryOverrides {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return policy.MarginPolicy{}, fmt.Errorf("invalid margin override for category %q: %w", category, err)
		}
		overrides[category] = pct
	}

	return policy.MarginPolicy{MinimumPercent: minimum, CategoryOverrides: overrides}, nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Основные настройки
	v.SetDefault("appName", "catalog-sync-service")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	// Настройки сервера
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "60s") // пакетный импорт бывает долгим
	v.SetDefault("server.shutdownTimeout", "15s")
	v.SetDefault("server.bodyLimit", 10) // 10 МБ

	// Настройки Postgres
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "catalog")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timeout", "5s")
	v.SetDefault("postgres.poolSize", 10)
	v.SetDefault("postgres.autoMigrate", true)

	// Настройки Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.prefix", "catalog-sync")

	// Настройки кэша
	v.SetDefault("cache.pageTTL", "5m")
	v.SetDefault("cache.summaryTTL", "1m")
	v.SetDefault("cache.cleanupInterval", "10m")

	// Настройки Kafka
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.groupID", "catalog-sync-service")
	v.SetDefault("kafka.eventsTopic", "catalog.events")
	v.SetDefault("kafka.jobsTopic", "catalog.jobs")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)

	// Настройки метрик
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)

	// Настройки безопасности
	v.SetDefault("security.jwtSecret", "")
	v.SetDefault("security.jwtIssuer", "")
	v.SetDefault("security.corsAllowOrigins", []string{"*"})

	// Настройки поставщика
	v.SetDefault("supplier.baseURL", "https://developers.cjdropshipping.com/api2.0/v1")
	v.SetDefault("supplier.accessToken", "")
	v.SetDefault("supplier.timeout", "30s")
	v.SetDefault("supplier.reviewsPageSize", 50)
	v.SetDefault("supplier.reviewPages", 3)

	// Настройки синхронизации
	v.SetDefault("sync.staleThreshold", "24h")
	v.SetDefault("sync.defaultSyncEnabled", true)
	v.SetDefault("sync.minPageSize", 10)
	v.SetDefault("sync.maxPageSize", 200)

	// Настройки ценообразования
	v.SetDefault("pricing.minMarginPercent", "10")
	v.SetDefault("pricing.categoryOverrides", map[string]string{})
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables(v *viper.Viper) error {
	bindings := map[string]string{
		// Основные настройки
		"appName":  "APP_NAME",
		"version":  "APP_VERSION",
		"logLevel": "LOG_LEVEL",
		"env":      "APP_ENV",

		// Настройки сервера
		"server.host":            "SERVER_HOST",
		"server.port":            "SERVER_PORT",
		"server.readTimeout":     "SERVER_READ_TIMEOUT",
		"server.writeTimeout":    "SERVER_WRITE_TIMEOUT",
		"server.shutdownTimeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.bodyLimit":       "SERVER_BODY_LIMIT",

		// Настройки Postgres
		"postgres.host":        "POSTGRES_HOST",
		"postgres.port":        "POSTGRES_PORT",
		"postgres.user":        "POSTGRES_USER",
		"postgres.password":    "POSTGRES_PASSWORD",
		"postgres.dbname":      "POSTGRES_DBNAME",
		"postgres.sslmode":     "POSTGRES_SSLMODE",
		"postgres.timeout":     "POSTGRES_TIMEOUT",
		"postgres.poolSize":    "POSTGRES_POOL_SIZE",
		"postgres.autoMigrate": "POSTGRES_AUTO_MIGRATE",

		// Настройки Redis
		"redis.enabled":  "REDIS_ENABLED",
		"redis.host":     "REDIS_HOST",
		"redis.port":     "REDIS_PORT",
		"redis.password": "REDIS_PASSWORD",
		"redis.db":       "REDIS_DB",
		"redis.poolSize": "REDIS_POOL_SIZE",
		"redis.prefix":   "REDIS_PREFIX",

		// Настройки кэша
		"cache.pageTTL":         "CACHE_PAGE_TTL",
		"cache.summaryTTL":      "CACHE_SUMMARY_TTL",
		"cache.cleanupInterval": "CACHE_CLEANUP_INTERVAL",

		// Настройки Kafka
		"kafka.enabled":     "KAFKA_ENABLED",
		"kafka.brokers":     "KAFKA_BROKERS",
		"kafka.groupID":     "KAFKA_GROUP_ID",
		"kafka.eventsTopic": "KAFKA_EVENTS_TOPIC",
		"kafka.jobsTopic":   "KAFKA_JOBS_TOPIC",
		"kafka.partitions":  "KAFKA_PARTITIONS",
		"kafka.replication": "KAFKA_REPLICATION",

		// Настройки метрик
		"metrics.enabled": "METRICS_ENABLED",
		"metrics.port":    "METRICS_PORT",

		// Настройки безопасности
		"security.jwtSecret":        "JWT_SECRET",
		"security.jwtIssuer":        "JWT_ISSUER",
		"security.corsAllowOrigins": "CORS_ALLOW_ORIGINS",

		// Настройки поставщика
		"supplier.baseURL":         "SUPPLIER_BASE_URL",
		"supplier.accessToken":     "SUPPLIER_ACCESS_TOKEN",
		"supplier.timeout":         "SUPPLIER_TIMEOUT",
		"supplier.reviewsPageSize": "SUPPLIER_REVIEWS_PAGE_SIZE",
		"supplier.reviewPages":     "SUPPLIER_REVIEW_PAGES",

		// Настройки синхронизации
		"sync.staleThreshold":     "SYNC_STALE_THRESHOLD",
		"sync.defaultSyncEnabled": "SYNC_DEFAULT_SYNC_ENABLED",
		"sync.minPageSize":        "SYNC_MIN_PAGE_SIZE",
		"sync.maxPageSize":        "SYNC_MAX_PAGE_SIZE",

		// Настройки ценообразования
		"pricing.minMarginPercent": "PRICING_MIN_MARGIN_PERCENT",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}
