// Точка входа Cardstore — сервис каталога карт Magic: The Gathering.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиент Scryfall и сервисный слой, запускает планировщик
// синхронизации и topologymetrics, HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/cardstore/internal/api/handlers"
	"github.com/bigkaa/cardstore/internal/api/middleware"
	"github.com/bigkaa/cardstore/internal/config"
	"github.com/bigkaa/cardstore/internal/database"
	"github.com/bigkaa/cardstore/internal/repository"
	"github.com/bigkaa/cardstore/internal/scryfall"
	"github.com/bigkaa/cardstore/internal/server"
	"github.com/bigkaa/cardstore/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Cardstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждение о дефолтном значении topologymetrics
	if os.Getenv("CS_DEPHEALTH_GROUP") == "" {
		logger.Warn("CS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент Scryfall
	scryfallClient := scryfall.New(cfg.ScryfallBaseURL, cfg.BulkDataType, logger)
	logger.Info("Клиент Scryfall создан",
		slog.String("url", cfg.ScryfallBaseURL),
		slog.String("bulk_data_type", cfg.BulkDataType),
	)

	// 6. Repositories
	cardRepo := repository.NewCardRepository(pool)
	syncStateRepo := repository.NewSyncStateRepository(pool)

	// 7. Services
	cardCache := service.NewCardCache(cfg.CacheSize, cfg.CacheTTL)
	cardQuerySvc := service.NewCardQueryService(cardRepo, cardCache, logger)

	// Оба пути загрузки работают через выделенные соединения вне пула
	bulkLoadSvc := service.NewBulkLoadService(cfg.DatabaseDSN(), logger)
	catalogSyncSvc := service.NewCatalogSyncService(cfg.DatabaseDSN(), cfg.SyncBatchSize, logger)
	pipeline := service.NewSyncPipeline(scryfallClient, bulkLoadSvc, catalogSyncSvc, cardRepo, logger)

	scheduler := service.NewSyncScheduler(
		pipeline, syncStateRepo,
		cfg.SyncEnabled, cfg.SyncStartDelay, cfg.SyncInterval,
		logger,
	)

	// 8. Readiness checker и API handler
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, cardQuerySvc, scheduler, logger)

	// 9. Запуск фоновых задач
	scheduler.Start(ctx)

	// 9.1 topologymetrics — мониторинг зависимостей (PostgreSQL + Scryfall)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"cardstore",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.ScryfallBaseURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	scheduler.Stop()

	logger.Info("Cardstore остановлен")
}
