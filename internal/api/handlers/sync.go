// sync.go — обработчики управления синхронизацией каталога.
// POST /api/v1/sync/trigger — внеочередной запуск (202 / 409)
// GET /api/v1/sync/status — статус планировщика
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/cardstore/internal/api/errors"
)

// syncTriggerResponse — ответ на запуск синхронизации.
type syncTriggerResponse struct {
	Status string `json:"status"`
}

// syncStatusResponse — ответ статуса планировщика.
type syncStatusResponse struct {
	Enabled    bool   `json:"enabled"`
	InProgress bool   `json:"in_progress"`
	LastRunAt  string `json:"last_run_at,omitempty"`
	LastResult string `json:"last_result,omitempty"`
}

// HandleTriggerSync — внеочередной запуск синхронизации.
// POST /api/v1/sync/trigger
// 202 — запуск принят, 409 — синхронизация выключена или уже идёт.
func (h *APIHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.sync.Status().Enabled {
		apierrors.SyncDisabled(w, "Синхронизация выключена конфигурацией")
		return
	}
	if !h.sync.TriggerNow() {
		apierrors.SyncInProgress(w, "Синхронизация уже выполняется")
		return
	}

	writeJSON(w, http.StatusAccepted, syncTriggerResponse{Status: "accepted"})
}

// HandleSyncStatus — статус планировщика синхронизации.
// GET /api/v1/sync/status
func (h *APIHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := h.sync.Status()

	resp := syncStatusResponse{
		Enabled:    status.Enabled,
		InProgress: status.InProgress,
		LastResult: status.LastResult,
	}
	if status.LastRunAt != nil {
		resp.LastRunAt = status.LastRunAt.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}
