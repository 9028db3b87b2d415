package api

import (
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies - сервисы, которые обслуживает API
type Dependencies struct {
	Catalog  handlers.CatalogLister
	Importer handlers.Importer
	Margins  handlers.MarginManager
	Products handlers.ProductLister
	Status   handlers.StatusReporter

	// ImportDefaults - параметры импорта по умолчанию для ручных запросов
	ImportDefaults services.ImportOptions

	// JWT может быть nil: тогда аутентификация отключена
	JWT     *security.JWTManager
	Metrics middleware.RequestObserver

	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
	BodyLimitBytes     int64
}

// SetupRouter настраивает маршрутизатор
func SetupRouter(deps Dependencies, logger interfaces.LoggerPort) *chi.Mux {
	r := chi.NewRouter()

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.CORS(deps.CORSAllowedOrigins))
	if deps.BodyLimitBytes > 0 {
		r.Use(chimiddleware.RequestSize(deps.BodyLimitBytes))
	}

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r.Handle("/metrics", promhttp.Handler())

	catalogHandler := handlers.NewCatalogHandler(deps.Catalog, logger)
	importHandler := handlers.NewImportHandler(deps.Importer, deps.ImportDefaults, logger)
	marginHandler := handlers.NewMarginHandler(deps.Margins, logger)
	productHandler := handlers.NewProductHandler(deps.Products, deps.Status, logger)

	read := middleware.RequireRole(deps.JWT, security.RoleViewer)
	write := middleware.RequireRole(deps.JWT, security.RoleOperator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.Auth(deps.JWT, logger))

		// Каталог поставщика
		r.Route("/catalog/remote", func(r chi.Router) {
			r.With(read).Get("/", catalogHandler.ListRemote)
			r.With(read).Post("/more", catalogHandler.LoadMore)
		})

		// Импорт из каталога поставщика
		r.Route("/imports", func(r chi.Router) {
			r.With(write).Post("/batch", importHandler.ImportBatch)
			r.With(write).Post("/{externalID}", importHandler.ImportProduct)
		})

		r.With(read).Get("/status/summary", productHandler.Summary)

		// Локальные товары
		r.Route("/products", func(r chi.Router) {
			r.With(read).Get("/", productHandler.ListProducts)

			r.Route("/{id}", func(r chi.Router) {
				r.With(read).Get("/", productHandler.GetProduct)
				r.With(read).Get("/margin-log", marginHandler.MarginLog)

				r.With(write).Put("/margin", marginHandler.SetMargin)
				r.With(write).Put("/price", marginHandler.UpdatePrice)

				r.With(write).Post("/sync/media", importHandler.SyncMedia)
				r.With(write).Post("/sync/stock", importHandler.SyncStock)
				r.With(write).Post("/sync/reviews", importHandler.SyncReviews)
			})
		})
	})

	return r
}
