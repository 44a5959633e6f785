// cache.go — LRU-кэш карт с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/cardstore/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш карт.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша карт.",
	})
)

// CardCache — LRU-кэш карт с автоматическим TTL, ключ — scryfall_id.
// TTL ограничивает устаревание: после синхронизации запись в кэше
// живёт не дольше CS_CACHE_TTL.
type CardCache struct {
	cache *expirable.LRU[string, *model.Card]
}

// NewCardCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCardCache(maxSize int, ttl time.Duration) *CardCache {
	cache := expirable.NewLRU[string, *model.Card](maxSize, nil, ttl)
	return &CardCache{cache: cache}
}

// Get возвращает карту из кэша по scryfallID.
// Возвращает (карта, true) при hit или (nil, false) при miss.
func (c *CardCache) Get(scryfallID string) (*model.Card, bool) {
	val, ok := c.cache.Get(scryfallID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет карту в кэше.
func (c *CardCache) Set(scryfallID string, card *model.Card) {
	c.cache.Add(scryfallID, card)
}
