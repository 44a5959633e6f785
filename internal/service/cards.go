// cards.go — сервис поиска и получения карт каталога.
// Координирует repository, LRU cache и Prometheus-метрики.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/repository"
)

// Ошибки сервисного слоя.
var (
	// ErrNotFound — карта не найдена.
	ErrNotFound = errors.New("карта не найдена")
)

// Prometheus-метрики поиска.
var (
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_search_total",
		Help: "Общее количество поисковых запросов.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardstore_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// Ограничения лимита поиска.
const (
	defaultSearchLimit = 20
	maxSearchLimit     = 175
)

// SearchResult — результат поиска карт.
type SearchResult struct {
	// Items — найденные карты
	Items []*model.Card
	// Total — общее количество совпадений
	Total int
	// Limit — применённый лимит
	Limit int
}

// CardQueryService — сервис чтения каталога карт.
type CardQueryService struct {
	cardRepo repository.CardRepository
	cache    *CardCache
	logger   *slog.Logger
}

// NewCardQueryService создаёт сервис чтения каталога.
func NewCardQueryService(
	cardRepo repository.CardRepository,
	cache *CardCache,
	logger *slog.Logger,
) *CardQueryService {
	return &CardQueryService{
		cardRepo: cardRepo,
		cache:    cache,
		logger:   logger.With(slog.String("component", "card_query")),
	}
}

// Search выполняет поиск карт по подстроке имени с опциональным
// фильтром легальности. Лимит нормализуется к диапазону 1-175.
func (s *CardQueryService) Search(ctx context.Context, name, format string, limit int) (*SearchResult, error) {
	start := time.Now()
	searchTotal.Inc()

	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	items, total, err := s.cardRepo.Search(ctx, repository.SearchParams{
		Name:   name,
		Format: format,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("поиск карт: %w", err)
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())

	s.logger.Debug("Поиск выполнен",
		slog.String("name", name),
		slog.String("format", format),
		slog.Int("total", total),
		slog.Int("returned", len(items)),
		slog.Duration("duration", duration),
	)

	return &SearchResult{
		Items: items,
		Total: total,
		Limit: limit,
	}, nil
}

// GetByID возвращает карту по UUID записи.
func (s *CardQueryService) GetByID(ctx context.Context, id string) (*model.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение карты: %w", err)
	}
	return card, nil
}

// GetByScryfallID возвращает карту по внешнему идентификатору.
// Сначала проверяет LRU-кэш, при промахе — запрос к PostgreSQL.
func (s *CardQueryService) GetByScryfallID(ctx context.Context, scryfallID string) (*model.Card, error) {
	if card, ok := s.cache.Get(scryfallID); ok {
		s.logger.Debug("Кэш hit для карты", slog.String("scryfall_id", scryfallID))
		return card, nil
	}

	card, err := s.cardRepo.GetByScryfallID(ctx, scryfallID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение карты: %w", err)
	}

	s.cache.Set(scryfallID, card)

	return card, nil
}

// Count возвращает общее количество карт в каталоге.
func (s *CardQueryService) Count(ctx context.Context) (int, error) {
	count, err := s.cardRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("подсчёт карт: %w", err)
	}
	return count, nil
}
