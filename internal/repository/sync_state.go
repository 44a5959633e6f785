package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/cardstore/internal/domain/model"
)

// SyncStateRepository — интерфейс доступа к состоянию синхронизации.
// Таблица sync_state содержит ровно одну строку (id = 1).
type SyncStateRepository interface {
	// Get возвращает текущее состояние синхронизации.
	Get(ctx context.Context) (*model.SyncState, error)
	// UpdateSyncResult записывает время и результат завершённого
	// прогона синхронизации.
	UpdateSyncResult(ctx context.Context, syncTime time.Time, result string) error
}

// syncStateRepo — реализация SyncStateRepository.
type syncStateRepo struct {
	db DBTX
}

// NewSyncStateRepository создаёт репозиторий состояния синхронизации.
func NewSyncStateRepository(db DBTX) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	query := `
		SELECT id, last_sync_at, COALESCE(last_result, ''), created_at, updated_at
		FROM sync_state
		WHERE id = 1`

	s := &model.SyncState{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.ID, &s.LastSyncAt, &s.LastResult, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения состояния синхронизации: %w", err)
	}
	return s, nil
}

func (r *syncStateRepo) UpdateSyncResult(ctx context.Context, syncTime time.Time, result string) error {
	query := `
		UPDATE sync_state
		SET last_sync_at = $1, last_result = $2, updated_at = now()
		WHERE id = 1`

	tag, err := r.db.Exec(ctx, query, syncTime, result)
	if err != nil {
		return fmt.Errorf("ошибка обновления состояния синхронизации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
