// cards.go — обработчики чтения каталога карт.
// GET /api/v1/cards/search — поиск по имени с фильтром легальности
// GET /api/v1/cards/{id} — карта по UUID записи
// GET /api/v1/cards/scryfall/{id} — карта по Scryfall ID
// GET /api/v1/cards/count — размер каталога
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/cardstore/internal/api/errors"
	"github.com/bigkaa/cardstore/internal/domain/model"
	"github.com/bigkaa/cardstore/internal/service"
)

// cardResponse — представление карты в API.
type cardResponse struct {
	ID            string            `json:"id"`
	ScryfallID    string            `json:"scryfall_id"`
	OracleID      string            `json:"oracle_id,omitempty"`
	Name          string            `json:"name"`
	ManaCost      string            `json:"mana_cost,omitempty"`
	CMC           float64           `json:"cmc"`
	TypeLine      string            `json:"type_line,omitempty"`
	OracleText    string            `json:"oracle_text,omitempty"`
	Colors        []string          `json:"colors"`
	ColorIdentity []string          `json:"color_identity"`
	Legalities    map[string]string `json:"legalities"`
	Prices        map[string]string `json:"prices,omitempty"`
	IsBasicLand   bool              `json:"is_basic_land"`
	Rarity        string            `json:"rarity,omitempty"`
	SetCode       string            `json:"set_code,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// searchResponse — ответ поиска карт.
type searchResponse struct {
	Cards []cardResponse `json:"cards"`
	Total int            `json:"total"`
	Limit int            `json:"limit"`
}

// countResponse — ответ подсчёта карт.
type countResponse struct {
	Count int `json:"count"`
}

// toCardResponse конвертирует доменную модель в API-представление.
func toCardResponse(c *model.Card) cardResponse {
	return cardResponse{
		ID:            c.ID,
		ScryfallID:    c.ScryfallID,
		OracleID:      c.OracleID,
		Name:          c.Name,
		ManaCost:      c.ManaCost,
		CMC:           c.CMC,
		TypeLine:      c.TypeLine,
		OracleText:    c.OracleText,
		Colors:        c.Colors,
		ColorIdentity: c.ColorIdentity,
		Legalities:    c.Legalities,
		Prices:        c.Prices,
		IsBasicLand:   c.IsBasicLand,
		Rarity:        c.Rarity,
		SetCode:       c.SetCode,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleSearchCards — поиск карт.
// GET /api/v1/cards/search?name=<подстрока>&format=<формат>&limit=<N>
func (h *APIHandler) HandleSearchCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	name := q.Get("name")
	if name == "" {
		apierrors.ValidationError(w, "Параметр name обязателен")
		return
	}

	var limit int
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apierrors.ValidationError(w, "Параметр limit должен быть положительным целым числом")
			return
		}
		limit = n
	}

	result, err := h.cards.Search(r.Context(), name, q.Get("format"), limit)
	if err != nil {
		h.logger.Error("Ошибка поиска карт", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка поиска карт")
		return
	}

	resp := searchResponse{
		Cards: make([]cardResponse, 0, len(result.Items)),
		Total: result.Total,
		Limit: result.Limit,
	}
	for _, c := range result.Items {
		resp.Cards = append(resp.Cards, toCardResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGetCard — карта по UUID записи.
// GET /api/v1/cards/{id}
func (h *APIHandler) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный UUID карты")
		return
	}

	card, err := h.cards.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Карта не найдена")
			return
		}
		h.logger.Error("Ошибка получения карты", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения карты")
		return
	}

	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// HandleGetCardByScryfallID — карта по внешнему идентификатору.
// GET /api/v1/cards/scryfall/{id}
func (h *APIHandler) HandleGetCardByScryfallID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		apierrors.ValidationError(w, "Идентификатор карты обязателен")
		return
	}

	card, err := h.cards.GetByScryfallID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Карта не найдена")
			return
		}
		h.logger.Error("Ошибка получения карты", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения карты")
		return
	}

	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// HandleCountCards — размер каталога.
// GET /api/v1/cards/count
func (h *APIHandler) HandleCountCards(w http.ResponseWriter, r *http.Request) {
	count, err := h.cards.Count(r.Context())
	if err != nil {
		h.logger.Error("Ошибка подсчёта карт", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка подсчёта карт")
		return
	}

	writeJSON(w, http.StatusOK, countResponse{Count: count})
}
