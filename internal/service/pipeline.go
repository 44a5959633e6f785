// pipeline.go — один прогон синхронизации каталога от начала до конца.
//
// SyncPipeline: discovery датасета → скачивание во временный файл →
// полная загрузка (пустой каталог) или инкрементальная синхронизация.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/repository"
	"github.com/bigkaa/cardstore/internal/scryfall"
)

// Шаг логирования прогресса скачивания.
const progressLogStep = 50 * 1024 * 1024

// Шаг логирования прогресса инкрементальной синхронизации, записей.
const syncProgressLogStep = 10000

// SyncPipeline — полный прогон синхронизации. Реализует SyncRunner.
type SyncPipeline struct {
	scryfall    *scryfall.Client
	bulkLoad    *BulkLoadService
	catalogSync *CatalogSyncService
	cardRepo    repository.CardRepository
	logger      *slog.Logger
}

// NewSyncPipeline создаёт пайплайн синхронизации.
func NewSyncPipeline(
	scryfallClient *scryfall.Client,
	bulkLoad *BulkLoadService,
	catalogSync *CatalogSyncService,
	cardRepo repository.CardRepository,
	logger *slog.Logger,
) *SyncPipeline {
	return &SyncPipeline{
		scryfall:    scryfallClient,
		bulkLoad:    bulkLoad,
		catalogSync: catalogSync,
		cardRepo:    cardRepo,
		logger:      logger.With(slog.String("component", "sync_pipeline")),
	}
}

// RunOnce выполняет один прогон синхронизации каталога.
func (p *SyncPipeline) RunOnce(ctx context.Context) (*model.SyncRunStats, error) {
	// 1. Discovery: актуальный URL датасета
	url, err := p.scryfall.ResolveDatasetURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery датасета: %w", err)
	}

	// 2. Скачивание во временный файл. Датасет слишком большой для
	// памяти, а двойной проход по нему не нужен — файл удаляется
	// сразу после прогона.
	tmp, err := os.CreateTemp("", "cardstore-dataset-*.json")
	if err != nil {
		return nil, fmt.Errorf("создание временного файла датасета: %w", err)
	}
	defer os.Remove(tmp.Name())

	var nextLog int64 = progressLogStep
	err = p.scryfall.Download(ctx, url, tmp, func(done, total int64) {
		if done >= nextLog {
			p.logger.Info("Скачивание датасета",
				slog.Int64("done_bytes", done),
				slog.Int64("total_bytes", total),
			)
			nextLog += progressLogStep
		}
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("скачивание датасета: %w", err)
	}

	// 3. Выбор режима: пустой каталог заполняется полной загрузкой,
	// непустой — инкрементально
	count, err := p.cardRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("проверка размера каталога: %w", err)
	}

	if count == 0 {
		p.logger.Info("Каталог пуст, выполняется полная загрузка")
		loaded, err := p.bulkLoad.FullLoad(ctx, tmp.Name())
		if err != nil {
			return nil, fmt.Errorf("полная загрузка: %w", err)
		}
		return &model.SyncRunStats{
			Total:    int(loaded),
			Inserted: int(loaded),
		}, nil
	}

	nextProgress := syncProgressLogStep
	stats, err := p.catalogSync.IncrementalSync(ctx, tmp.Name(), func(processed int) {
		if processed >= nextProgress {
			p.logger.Info("Синхронизация каталога",
				slog.Int("processed", processed),
			)
			nextProgress += syncProgressLogStep
		}
	})
	if err != nil {
		return nil, fmt.Errorf("инкрементальная синхронизация: %w", err)
	}

	// 4. Извещения об изменениях легальностей — в лог
	for _, notice := range stats.LegalityChanges {
		for _, change := range notice.Changes {
			p.logger.Info("Изменение легальности",
				slog.String("card", notice.Name),
				slog.String("scryfall_id", notice.ScryfallID),
				slog.String("format", change.Format),
				slog.String("old", change.Old),
				slog.String("new", change.New),
			)
		}
	}

	return stats, nil
}
