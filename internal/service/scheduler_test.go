package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/cardstore/internal/domain/model"
)

// stubRunner — управляемая заглушка SyncRunner.
type stubRunner struct {
	runs    atomic.Int32
	stats   *model.SyncRunStats
	err     error
	blockCh chan struct{} // если не nil, RunOnce блокируется до закрытия
}

func (r *stubRunner) RunOnce(ctx context.Context) (*model.SyncRunStats, error) {
	r.runs.Add(1)
	if r.blockCh != nil {
		select {
		case <-r.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.stats, nil
}

// fakeSyncStateRepo — in-memory реализация SyncStateRepository.
type fakeSyncStateRepo struct {
	state      model.SyncState
	lastResult string
}

func (f *fakeSyncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	s := f.state
	return &s, nil
}

func (f *fakeSyncStateRepo) UpdateSyncResult(ctx context.Context, syncTime time.Time, result string) error {
	f.state.LastSyncAt = &syncTime
	f.state.LastResult = result
	f.lastResult = result
	return nil
}

// waitFor опрашивает условие до истечения таймаута.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Таймаут ожидания: %s", msg)
}

// TestScheduler_TriggerNow проверяет внеочередной запуск и фиксацию результата.
func TestScheduler_TriggerNow(t *testing.T) {
	runner := &stubRunner{
		stats: &model.SyncRunStats{Total: 10, Inserted: 2, Updated: 3, Unchanged: 5},
	}
	stateRepo := &fakeSyncStateRepo{}
	// Большая задержка старта: прогон только по ручному запуску
	sched := NewSyncScheduler(runner, stateRepo, true, time.Hour, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	if !sched.TriggerNow() {
		t.Fatal("TriggerNow() вернул false при простое")
	}

	waitFor(t, 2*time.Second, func() bool {
		return sched.Status().LastRunAt != nil
	}, "завершение прогона")

	if got := runner.runs.Load(); got != 1 {
		t.Errorf("Прогонов %d, хотели 1", got)
	}

	status := sched.Status()
	if status.InProgress {
		t.Error("InProgress = true после завершения")
	}
	if !strings.HasPrefix(status.LastResult, "успех") {
		t.Errorf("LastResult = %q, хотели префикс %q", status.LastResult, "успех")
	}
	if !strings.HasPrefix(stateRepo.lastResult, "успех") {
		t.Errorf("Результат не сохранён в БД: %q", stateRepo.lastResult)
	}
}

// TestScheduler_SingleFlight: запуск во время идущего прогона — no-op.
func TestScheduler_SingleFlight(t *testing.T) {
	blockCh := make(chan struct{})
	runner := &stubRunner{
		stats:   &model.SyncRunStats{},
		blockCh: blockCh,
	}
	stateRepo := &fakeSyncStateRepo{}
	sched := NewSyncScheduler(runner, stateRepo, true, time.Hour, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	if !sched.TriggerNow() {
		t.Fatal("Первый TriggerNow() вернул false")
	}

	waitFor(t, 2*time.Second, func() bool {
		return sched.Status().InProgress
	}, "начало прогона")

	// Прогон идёт — повторный запуск отклоняется
	if sched.TriggerNow() {
		t.Error("TriggerNow() вернул true во время идущего прогона")
	}

	close(blockCh)

	waitFor(t, 2*time.Second, func() bool {
		return !sched.Status().InProgress
	}, "завершение прогона")

	if got := runner.runs.Load(); got != 1 {
		t.Errorf("Прогонов %d, хотели 1", got)
	}
}

// TestScheduler_Disabled: выключенный планировщик остаётся в простое —
// таймер не взводится, ручной запуск отклоняется.
func TestScheduler_Disabled(t *testing.T) {
	runner := &stubRunner{stats: &model.SyncRunStats{}}
	stateRepo := &fakeSyncStateRepo{}
	// Нулевая задержка: при включённом планировщике прогон стартовал бы сразу
	sched := NewSyncScheduler(runner, stateRepo, false, 0, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	if sched.Status().Enabled {
		t.Error("Status().Enabled = true, хотели false")
	}

	// Ручной запуск тоже отклоняется
	if sched.TriggerNow() {
		t.Error("TriggerNow() вернул true при выключенной синхронизации")
	}

	time.Sleep(100 * time.Millisecond)

	if got := runner.runs.Load(); got != 0 {
		t.Errorf("Прогонов %d при выключенной синхронизации, хотели 0", got)
	}
}

// TestScheduler_RunError: ошибка прогона фиксируется в статусе.
func TestScheduler_RunError(t *testing.T) {
	runner := &stubRunner{err: errors.New("датасет недоступен")}
	stateRepo := &fakeSyncStateRepo{}
	sched := NewSyncScheduler(runner, stateRepo, true, time.Hour, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	sched.TriggerNow()

	waitFor(t, 2*time.Second, func() bool {
		return sched.Status().LastRunAt != nil
	}, "завершение прогона")

	status := sched.Status()
	if !strings.HasPrefix(status.LastResult, "ошибка") {
		t.Errorf("LastResult = %q, хотели префикс %q", status.LastResult, "ошибка")
	}
}

// TestScheduler_NilStats: прогон без статистики и без ошибки
// фиксируется как успех, а не падает на разыменовании.
func TestScheduler_NilStats(t *testing.T) {
	runner := &stubRunner{} // RunOnce вернёт (nil, nil)
	stateRepo := &fakeSyncStateRepo{}
	sched := NewSyncScheduler(runner, stateRepo, true, time.Hour, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	if !sched.TriggerNow() {
		t.Fatal("TriggerNow() вернул false при простое")
	}

	waitFor(t, 2*time.Second, func() bool {
		return sched.Status().LastRunAt != nil
	}, "завершение прогона")

	if got := sched.Status().LastResult; !strings.HasPrefix(got, "успех") {
		t.Errorf("LastResult = %q, хотели префикс %q", got, "успех")
	}
}

// TestScheduler_PeriodicRun: прогон стартует по таймеру.
func TestScheduler_PeriodicRun(t *testing.T) {
	runner := &stubRunner{stats: &model.SyncRunStats{}}
	stateRepo := &fakeSyncStateRepo{}
	sched := NewSyncScheduler(runner, stateRepo, true, 20*time.Millisecond, time.Hour, testLogger())

	sched.Start(context.Background())
	defer sched.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return runner.runs.Load() == 1
	}, "первый прогон по таймеру")
}
