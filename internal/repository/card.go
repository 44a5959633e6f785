package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/cardstore/internal/domain/model"
)

// cardColumns — список столбцов таблицы cards для SELECT-запросов.
// Nullable-скаляры нормализуются в пустые строки прямо в SQL,
// чтобы потребители никогда не видели NULL.
const cardColumns = `id, scryfall_id, COALESCE(oracle_id, ''), name,
	COALESCE(mana_cost, ''), cmc, COALESCE(type_line, ''), COALESCE(oracle_text, ''),
	colors, color_identity, legalities, prices, is_basic_land,
	COALESCE(rarity, ''), COALESCE(set_code, ''), created_at, updated_at`

// SearchParams — параметры поиска карт.
type SearchParams struct {
	// Name — подстрока имени (ILIKE, обязательная)
	Name string
	// Format — фильтр легальности: вернуть только карты со статусом
	// legal в указанном формате (пустая строка — без фильтра)
	Format string
	// Limit — количество результатов
	Limit int
}

// CardRepository — интерфейс доступа к каталогу карт.
// Узкий read/write-интерфейс, через который остальная система
// (и пайплайн синхронизации) работает с каталогом.
type CardRepository interface {
	// GetByID возвращает карту по первичному ключу (UUID).
	GetByID(ctx context.Context, id string) (*model.Card, error)
	// GetByScryfallID возвращает карту по внешнему идентификатору.
	GetByScryfallID(ctx context.Context, scryfallID string) (*model.Card, error)
	// Search выполняет поиск по подстроке имени с опциональным фильтром
	// легальности. Сортировка: длина имени по возрастанию, затем имя.
	// Возвращает: список карт, общее количество по фильтру, ошибка.
	Search(ctx context.Context, params SearchParams) ([]*model.Card, int, error)
	// Count возвращает общее количество карт в каталоге.
	Count(ctx context.Context) (int, error)
	// Upsert вставляет карту или заменяет все поля существующей,
	// кроме id и created_at (ключ — scryfall_id).
	// Возвращает true, если строка была вставлена (а не обновлена).
	Upsert(ctx context.Context, card *model.Card) (inserted bool, err error)
	// BatchUpsert выполняет Upsert для каждой карты.
	// Ошибка одиночного upsert не прерывает батч: такая карта
	// учитывается в failed, обработка продолжается.
	BatchUpsert(ctx context.Context, cards []*model.Card) (inserted, updated, failed int)
	// Snapshot загружает проекцию всех карт для change detection,
	// ключ — scryfall_id.
	Snapshot(ctx context.Context) (map[string]*model.CardSnapshot, error)
}

// cardRepo — реализация CardRepository.
type cardRepo struct {
	db DBTX
}

// NewCardRepository создаёт репозиторий каталога карт.
func NewCardRepository(db DBTX) CardRepository {
	return &cardRepo{db: db}
}

func (r *cardRepo) GetByID(ctx context.Context, id string) (*model.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE id = $1`, cardColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *cardRepo) GetByScryfallID(ctx context.Context, scryfallID string) (*model.Card, error) {
	query := fmt.Sprintf(`SELECT %s FROM cards WHERE scryfall_id = $1`, cardColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, scryfallID))
}

// scanOne сканирует одну строку в Card или возвращает ErrNotFound.
func (r *cardRepo) scanOne(row pgx.Row) (*model.Card, error) {
	c := &model.Card{}
	err := row.Scan(
		&c.ID, &c.ScryfallID, &c.OracleID, &c.Name,
		&c.ManaCost, &c.CMC, &c.TypeLine, &c.OracleText,
		&c.Colors, &c.ColorIdentity, &c.Legalities, &c.Prices, &c.IsBasicLand,
		&c.Rarity, &c.SetCode, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения карты: %w", err)
	}
	return c, nil
}

func (r *cardRepo) Search(ctx context.Context, params SearchParams) ([]*model.Card, int, error) {
	// Динамическое построение WHERE
	conditions := []string{"name ILIKE $1"}
	args := []any{"%" + params.Name + "%"}

	if params.Format != "" {
		conditions = append(conditions, fmt.Sprintf("legalities->>$%d = '%s'", len(args)+1, model.LegalityLegal))
		args = append(args, params.Format)
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Сортировка фиксированная: короткие имена первыми (точное имя
	// всплывает выше частичных совпадений), затем алфавит.
	query := fmt.Sprintf(`
		SELECT %s FROM cards
		%s
		ORDER BY char_length(name), name
		LIMIT $%d`, cardColumns, where, len(args)+1)

	rows, err := r.db.Query(ctx, query, append(args, params.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска карт: %w", err)
	}
	defer rows.Close()

	var result []*model.Card
	for rows.Next() {
		c := &model.Card{}
		if err := rows.Scan(
			&c.ID, &c.ScryfallID, &c.OracleID, &c.Name,
			&c.ManaCost, &c.CMC, &c.TypeLine, &c.OracleText,
			&c.Colors, &c.ColorIdentity, &c.Legalities, &c.Prices, &c.IsBasicLand,
			&c.Rarity, &c.SetCode, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования карты: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Общее количество по тем же фильтрам (без LIMIT)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM cards %s`, where)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта карт: %w", err)
	}

	return result, total, nil
}

func (r *cardRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта карт: %w", err)
	}
	return count, nil
}

func (r *cardRepo) Upsert(ctx context.Context, card *model.Card) (bool, error) {
	// Last-writer-wins для всех полей, кроме идентичности (id)
	// и времени создания. (xmax = 0) отличает вставку от обновления.
	query := `
		INSERT INTO cards (scryfall_id, oracle_id, name, mana_cost, cmc,
			type_line, oracle_text, colors, color_identity, legalities,
			prices, is_basic_land, rarity, set_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (scryfall_id) DO UPDATE SET
			oracle_id = EXCLUDED.oracle_id,
			name = EXCLUDED.name,
			mana_cost = EXCLUDED.mana_cost,
			cmc = EXCLUDED.cmc,
			type_line = EXCLUDED.type_line,
			oracle_text = EXCLUDED.oracle_text,
			colors = EXCLUDED.colors,
			color_identity = EXCLUDED.color_identity,
			legalities = EXCLUDED.legalities,
			prices = EXCLUDED.prices,
			is_basic_land = EXCLUDED.is_basic_land,
			rarity = EXCLUDED.rarity,
			set_code = EXCLUDED.set_code,
			updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	// nil-срезы и map ушли бы в NOT NULL столбцы как NULL
	if card.Colors == nil {
		card.Colors = []string{}
	}
	if card.ColorIdentity == nil {
		card.ColorIdentity = []string{}
	}
	if card.Legalities == nil {
		card.Legalities = map[string]string{}
	}
	if card.Prices == nil {
		card.Prices = map[string]string{}
	}

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		card.ScryfallID, nullable(card.OracleID), card.Name, nullable(card.ManaCost), card.CMC,
		nullable(card.TypeLine), nullable(card.OracleText), card.Colors, card.ColorIdentity, card.Legalities,
		card.Prices, card.IsBasicLand, nullable(card.Rarity), nullable(card.SetCode),
	).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt, &inserted)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: карта %s", ErrConflict, card.ScryfallID)
		}
		return false, fmt.Errorf("ошибка upsert карты %s: %w", card.ScryfallID, err)
	}
	return inserted, nil
}

func (r *cardRepo) BatchUpsert(ctx context.Context, cards []*model.Card) (inserted, updated, failed int) {
	for _, c := range cards {
		ins, err := r.Upsert(ctx, c)
		if err != nil {
			failed++
			continue
		}
		if ins {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, failed
}

func (r *cardRepo) Snapshot(ctx context.Context) (map[string]*model.CardSnapshot, error) {
	query := `
		SELECT scryfall_id, name, COALESCE(mana_cost, ''), COALESCE(type_line, ''),
			COALESCE(oracle_text, ''), legalities, prices
		FROM cards`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки снапшота каталога: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]*model.CardSnapshot)
	for rows.Next() {
		s := &model.CardSnapshot{}
		if err := rows.Scan(
			&s.ScryfallID, &s.Name, &s.ManaCost, &s.TypeLine,
			&s.OracleText, &s.Legalities, &s.Prices,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования снапшота: %w", err)
		}
		snapshot[s.ScryfallID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации снапшота: %w", err)
	}
	return snapshot, nil
}

// nullable возвращает nil для пустой строки, чтобы в БД попадал NULL,
// симметрично COALESCE при чтении.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
