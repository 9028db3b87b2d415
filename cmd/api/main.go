package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/config"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/metrics"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/api"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/app"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	container, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации зависимостей", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	var jwtManager *security.JWTManager
	if cfg.Security.JWTSecret != "" {
		jwtManager, err = security.NewJWTManager([]byte(cfg.Security.JWTSecret), time.Hour, cfg.Security.JWTIssuer)
		if err != nil {
			log.Fatal("Ошибка инициализации JWT", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	} else {
		log.Warn("JWT секрет не задан, аутентификация отключена")
	}

	router := api.SetupRouter(api.Dependencies{
		Catalog:            container.Catalog,
		Importer:           container.Import,
		Margins:            container.Margins,
		Products:           container.Storage,
		Status:             container.Status,
		ImportDefaults:     container.ImportDefaults,
		JWT:                jwtManager,
		Metrics:            metrics.NewHTTPMetrics(nil),
		CORSAllowedOrigins: cfg.Security.CORSAllowOrigins,
		RequestTimeout:     cfg.Server.WriteTimeout,
		BodyLimitBytes:     int64(cfg.Server.BodyLimit) << 20,
	}, log)
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		log.Info("Закрытие соединений с зависимостями...")
		container.Close()

		close(done)
	}()

	// Ожидаем завершения работы
	<-done
	log.Info("Сервер корректно завершил работу")
}
