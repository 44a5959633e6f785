// sync.go — инкрементальная синхронизация каталога с датасетом.
//
// CatalogSyncService сравнивает каждую запись датасета со снапшотом
// каталога и пишет в БД только изменившиеся и новые карты батчами.
// Отдельно от решения о записи формируются извещения об изменениях
// легальностей (ChangeNotice) для логов.
//
// Инвариант учёта: inserted + updated + unchanged + failed == total.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/cardstore/internal/database"
	"github.com/bigkaa/cardstore/internal/dataset"
	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/repository"
)

var (
	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardstore_sync_duration_seconds",
		Help:    "Длительность инкрементальной синхронизации каталога",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s … ~512s
	})

	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardstore_sync_records_total",
		Help: "Количество обработанных записей при синхронизации",
	}, []string{"result"}) // result: inserted, updated, unchanged, failed

	legalityChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_legality_changes_total",
		Help: "Количество зафиксированных изменений легальностей",
	})
)

// CatalogSyncService — сервис инкрементальной синхронизации каталога.
//
// Снапшот и upsert идут через выделенное соединение вне общего пула:
// долгий прогон не должен занимать соединения обработчиков запросов,
// как и COPY в BulkLoadService.
type CatalogSyncService struct {
	batchSize int
	logger    *slog.Logger

	// openRepo выдаёт репозиторий карт поверх выделенного соединения
	// и функцию его освобождения; в тестах подменяется in-memory
	// реализацией.
	openRepo func(ctx context.Context) (repository.CardRepository, func(), error)
}

// NewCatalogSyncService создаёт сервис инкрементальной синхронизации.
// dsn — строка подключения для выделенного соединения.
func NewCatalogSyncService(dsn string, batchSize int, logger *slog.Logger) *CatalogSyncService {
	return &CatalogSyncService{
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "catalog_sync")),
		openRepo: func(ctx context.Context) (repository.CardRepository, func(), error) {
			conn, err := database.ConnectDedicated(ctx, dsn)
			if err != nil {
				return nil, nil, err
			}
			release := func() {
				// Контекст прогона к этому моменту может быть отменён
				_ = conn.Close(context.Background())
			}
			return repository.NewCardRepository(conn), release, nil
		},
	}
}

// IncrementalSync выполняет один прогон инкрементальной синхронизации:
// 1. Снапшот каталога (scryfall_id → проекция для сравнения)
// 2. Потоковый проход по датасету с классификацией записей
// 3. Батчевый upsert новых и изменившихся карт
//
// onProgress (может быть nil) вызывается после записи каждого батча
// с накопленным числом обработанных записей датасета.
func (s *CatalogSyncService) IncrementalSync(ctx context.Context, path string, onProgress func(processed int)) (*model.SyncRunStats, error) {
	startedAt := time.Now()

	cardRepo, release, err := s.openRepo(ctx)
	if err != nil {
		return nil, fmt.Errorf("выделенное соединение для синхронизации: %w", err)
	}
	defer release()

	snapshot, err := cardRepo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("снапшот каталога: %w", err)
	}
	s.logger.Info("Снапшот каталога построен", slog.Int("cards", len(snapshot)))

	stats := &model.SyncRunStats{}
	batch := make([]*model.Card, 0, s.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ins, upd, failed := cardRepo.BatchUpsert(ctx, batch)
		stats.Inserted += ins
		stats.Updated += upd
		stats.Failed += failed
		s.logger.Debug("Батч обработан",
			slog.Int("size", len(batch)),
			slog.Int("inserted", ins),
			slog.Int("updated", upd),
			slog.Int("failed", failed),
		)
		batch = batch[:0]
		if onProgress != nil {
			onProgress(stats.Total)
		}
	}

	err = dataset.ForEachCardFile(path, func(card *model.Card) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stats.Total++

		prev, exists := snapshot[card.ScryfallID]
		if exists {
			// Извещения о легальностях не зависят от решения о записи:
			// статус мог поменяться при неизменных остальных полях и наоборот
			if changes := diffLegalities(prev.Legalities, card.Legalities); len(changes) > 0 {
				stats.LegalityChanges = append(stats.LegalityChanges, model.ChangeNotice{
					Name:       card.Name,
					ScryfallID: card.ScryfallID,
					Changes:    changes,
				})
			}

			if !cardChanged(prev, card) {
				stats.Unchanged++
				return nil
			}
		}

		batch = append(batch, card)
		if len(batch) >= s.batchSize {
			flush()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("проход по датасету: %w", err)
	}
	flush()

	stats.Elapsed = time.Since(startedAt)

	syncDuration.Observe(stats.Elapsed.Seconds())
	syncRecordsTotal.WithLabelValues("inserted").Add(float64(stats.Inserted))
	syncRecordsTotal.WithLabelValues("updated").Add(float64(stats.Updated))
	syncRecordsTotal.WithLabelValues("unchanged").Add(float64(stats.Unchanged))
	syncRecordsTotal.WithLabelValues("failed").Add(float64(stats.Failed))
	legalityChangesTotal.Add(float64(len(stats.LegalityChanges)))

	s.logger.Info("Инкрементальная синхронизация завершена",
		slog.Int("total", stats.Total),
		slog.Int("inserted", stats.Inserted),
		slog.Int("updated", stats.Updated),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("failed", stats.Failed),
		slog.Int("legality_changes", len(stats.LegalityChanges)),
		slog.String("duration", fmt.Sprintf("%.1fs", stats.Elapsed.Seconds())),
	)

	return stats, nil
}

// cardChanged сравнивает запись датасета с проекцией каталога
// по полям, участвующим в change detection.
func cardChanged(prev *model.CardSnapshot, card *model.Card) bool {
	if prev.Name != card.Name ||
		prev.ManaCost != card.ManaCost ||
		prev.TypeLine != card.TypeLine ||
		prev.OracleText != card.OracleText {
		return true
	}
	if !maps.Equal(prev.Legalities, card.Legalities) {
		return true
	}
	if !maps.Equal(prev.Prices, card.Prices) {
		return true
	}
	return false
}

// diffLegalities возвращает переходы статусов по форматам датасета,
// отсортированные по имени формата. Переход фиксируется только для
// формата, уже известного каталогу: первое появление формата и
// исчезновение формата из датасета изменением статуса не считаются.
func diffLegalities(old, new map[string]string) []model.LegalityChange {
	var changes []model.LegalityChange
	for f, status := range new {
		prev, known := old[f]
		if !known || prev == status {
			continue
		}
		changes = append(changes, model.LegalityChange{
			Format: f,
			Old:    prev,
			New:    status,
		})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Format < changes[j].Format
	})
	return changes
}
