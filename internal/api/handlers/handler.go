// handler.go — основной обработчик API Cardstore.
// Объединяет health, cards и sync обработчики поверх сервисного слоя.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/service"
)

// SyncControl — управление планировщиком синхронизации.
// Реализуется service.SyncScheduler; в тестах подменяется заглушкой.
type SyncControl interface {
	TriggerNow() bool
	Status() model.SchedulerStatus
}

// APIHandler — основной обработчик API Cardstore.
type APIHandler struct {
	health *HealthHandler
	cards  *service.CardQueryService
	sync   SyncControl
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	cards *service.CardQueryService,
	sync SyncControl,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		cards:  cards,
		sync:   sync,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
