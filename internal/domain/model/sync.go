package model

import "time"

// SyncState — состояние синхронизации каталога (одна строка в БД).
// Хранится в таблице sync_state (id = 1, всегда одна запись).
type SyncState struct {
	// ID — всегда 1
	ID int
	// LastSyncAt — время завершения последней попытки синхронизации
	LastSyncAt *time.Time
	// LastResult — результат последней попытки ("успех: ..." / "ошибка: ...",
	// пустая строка — синхронизация ещё не выполнялась)
	LastResult string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// LegalityChange — один переход статуса легальности карты в формате.
type LegalityChange struct {
	// Format — формат (modern, standard, ...)
	Format string
	// Old — прежний статус
	Old string
	// New — новый статус
	New string
}

// ChangeNotice — извещение об изменении легальностей одной карты.
// Живёт только в рамках прогона синхронизации, не персистится.
type ChangeNotice struct {
	// Name — имя карты
	Name string
	// ScryfallID — внешний идентификатор карты
	ScryfallID string
	// Changes — список переходов (формат, старый статус, новый статус)
	Changes []LegalityChange
}

// SyncRunStats — итоги одного прогона синхронизации.
type SyncRunStats struct {
	// Total — всего записей обработано
	Total int
	// Inserted — новых записей вставлено
	Inserted int
	// Updated — записей обновлено
	Updated int
	// Unchanged — записей без изменений (запись в БД не выполнялась)
	Unchanged int
	// Failed — записей, для которых upsert завершился ошибкой
	// (батч продолжается, потеря видна оператору)
	Failed int
	// LegalityChanges — извещения об изменениях легальностей
	LegalityChanges []ChangeNotice
	// Elapsed — длительность прогона
	Elapsed time.Duration
}

// SchedulerStatus — снимок состояния планировщика синхронизации.
type SchedulerStatus struct {
	// Enabled — включена ли периодическая синхронизация
	Enabled bool
	// InProgress — выполняется ли синхронизация прямо сейчас
	InProgress bool
	// LastRunAt — время завершения последней попытки (nil — ещё не было)
	LastRunAt *time.Time
	// LastResult — результат последней попытки ("" — ещё не было)
	LastResult string
}
