// scheduler.go — планировщик периодической синхронизации каталога.
//
// SyncScheduler запускает фоновую горутину: первый прогон через
// CS_SYNC_START_DELAY после старта, дальше — через CS_SYNC_INTERVAL
// после завершения предыдущей попытки (интервал отсчитывается от
// конца, а не от начала). Одновременно выполняется не больше одного
// прогона: ручной запуск во время идущего прогона — no-op.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/repository"
)

var syncInProgressGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cardstore_sync_in_progress",
	Help: "Признак идущей синхронизации каталога (1 — выполняется)",
})

// SyncRunner — один прогон синхронизации каталога.
// Реализуется SyncPipeline; в тестах подменяется заглушкой.
type SyncRunner interface {
	RunOnce(ctx context.Context) (*model.SyncRunStats, error)
}

// runResult — итог прогона, передаётся из рабочей горутины в цикл планировщика.
type runResult struct {
	stats *model.SyncRunStats
	err   error
}

// SyncScheduler — планировщик синхронизации каталога.
type SyncScheduler struct {
	runner        SyncRunner
	syncStateRepo repository.SyncStateRepository
	enabled       bool
	startDelay    time.Duration
	interval      time.Duration
	logger        *slog.Logger

	mu         sync.Mutex
	inProgress bool
	lastRunAt  *time.Time
	lastResult string

	triggerCh chan struct{}
	runDone   chan runResult
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSyncScheduler создаёт планировщик.
func NewSyncScheduler(
	runner SyncRunner,
	syncStateRepo repository.SyncStateRepository,
	enabled bool,
	startDelay, interval time.Duration,
	logger *slog.Logger,
) *SyncScheduler {
	return &SyncScheduler{
		runner:        runner,
		syncStateRepo: syncStateRepo,
		enabled:       enabled,
		startDelay:    startDelay,
		interval:      interval,
		logger:        logger.With(slog.String("component", "sync_scheduler")),
		triggerCh:     make(chan struct{}, 1),
		// Буфер, чтобы рабочая горутина не блокировалась при остановке
		runDone: make(chan runResult, 1),
	}
}

// Start запускает цикл планировщика. Вызывается один раз при старте
// приложения. При выключенной синхронизации цикл остаётся в простое:
// таймер не взводится, ручные запуски отклоняются в TriggerNow.
func (s *SyncScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	// Подхватываем результат предыдущего прогона из БД, чтобы статус
	// был осмысленным сразу после рестарта
	if state, err := s.syncStateRepo.Get(ctx); err == nil {
		s.mu.Lock()
		s.lastRunAt = state.LastSyncAt
		s.lastResult = state.LastResult
		s.mu.Unlock()
	}

	go func() {
		defer close(s.done)

		s.logger.Info("Планировщик синхронизации запущен",
			slog.Bool("enabled", s.enabled),
			slog.String("start_delay", s.startDelay.String()),
			slog.String("interval", s.interval.String()),
		)

		// При выключенной синхронизации таймер не нужен: nil-канал
		// никогда не срабатывает
		var timer *time.Timer
		var timerCh <-chan time.Time
		if s.enabled {
			timer = time.NewTimer(s.startDelay)
			defer timer.Stop()
			timerCh = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Планировщик синхронизации остановлен")
				return
			case <-timerCh:
				s.launch(ctx)
			case <-s.triggerCh:
				s.launch(ctx)
			case res := <-s.runDone:
				s.finish(ctx, res)
				// Интервал отсчитывается от завершения попытки
				if timer != nil {
					timer.Reset(s.interval)
				}
			}
		}
	}()
}

// Stop останавливает планировщик и ждёт завершения цикла.
// Идущий прогон прерывается через контекст.
func (s *SyncScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// TriggerNow запрашивает внеочередной прогон. Возвращает false,
// если синхронизация выключена конфигурацией или прогон уже идёт
// (запрос игнорируется). Выключенный планировщик не выполняет
// прогонов вообще, включая ручные.
func (s *SyncScheduler) TriggerNow() bool {
	if !s.enabled {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	select {
	case s.triggerCh <- struct{}{}:
	default:
		// Запуск уже запрошен
	}
	return true
}

// Status возвращает снимок состояния планировщика.
func (s *SyncScheduler) Status() model.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SchedulerStatus{
		Enabled:    s.enabled,
		InProgress: s.inProgress,
		LastRunAt:  s.lastRunAt,
		LastResult: s.lastResult,
	}
}

// launch запускает прогон в рабочей горутине, если он ещё не идёт.
func (s *SyncScheduler) launch(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.mu.Unlock()

	syncInProgressGauge.Set(1)

	s.logger.Info("Запуск синхронизации каталога")

	go func() {
		stats, err := s.runner.RunOnce(ctx)
		s.runDone <- runResult{stats: stats, err: err}
	}()
}

// finish фиксирует итог прогона в статусе и в БД.
func (s *SyncScheduler) finish(ctx context.Context, res runResult) {
	now := time.Now().UTC()

	var result string
	if res.err != nil {
		result = fmt.Sprintf("ошибка: %v", res.err)
		s.logger.Error("Синхронизация каталога завершилась ошибкой",
			slog.String("error", res.err.Error()),
		)
	} else {
		stats := res.stats
		if stats == nil {
			stats = &model.SyncRunStats{}
		}
		result = fmt.Sprintf("успех: total=%d inserted=%d updated=%d unchanged=%d failed=%d",
			stats.Total, stats.Inserted, stats.Updated, stats.Unchanged, stats.Failed)
		s.logger.Info("Синхронизация каталога завершена",
			slog.Int("total", stats.Total),
			slog.Int("inserted", stats.Inserted),
			slog.Int("updated", stats.Updated),
			slog.Int("unchanged", stats.Unchanged),
			slog.Int("failed", stats.Failed),
		)
	}

	s.mu.Lock()
	s.inProgress = false
	s.lastRunAt = &now
	s.lastResult = result
	s.mu.Unlock()

	syncInProgressGauge.Set(0)

	if err := s.syncStateRepo.UpdateSyncResult(ctx, now, result); err != nil {
		s.logger.Warn("Ошибка сохранения результата синхронизации",
			slog.String("error", err.Error()),
		)
	}
}
