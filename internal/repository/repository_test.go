package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/cardstore/internal/config"
	"github.com/bigkaa/cardstore/internal/database"
	"github.com/bigkaa/cardstore/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("cardstore_test"),
		postgres.WithUsername("cardstore"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("CS_DB_HOST", host)
	os.Setenv("CS_DB_PORT", port.Port())
	os.Setenv("CS_DB_NAME", "cardstore_test")
	os.Setenv("CS_DB_USER", "cardstore")
	os.Setenv("CS_DB_PASSWORD", "test-password")
	os.Setenv("CS_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// testCard возвращает минимально заполненную карту с заданным scryfall_id.
func testCard(scryfallID, name string) *model.Card {
	return &model.Card{
		ScryfallID:    scryfallID,
		OracleID:      "oracle-" + scryfallID,
		Name:          name,
		ManaCost:      "{1}{U}",
		CMC:           2,
		TypeLine:      "Instant",
		OracleText:    "Counter target spell.",
		Colors:        []string{"U"},
		ColorIdentity: []string{"U"},
		Legalities:    map[string]string{"standard": model.LegalityLegal, "modern": model.LegalityLegal},
		Prices:        map[string]string{"usd": "0.25"},
		Rarity:        "common",
		SetCode:       "tst",
	}
}

// --- Тесты CardRepository ---

func TestCardUpsertAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCardRepository(pool)

	card := testCard("sf-001", "Cancel")

	// Первый upsert — вставка
	inserted, err := repo.Upsert(ctx, card)
	if err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if !inserted {
		t.Error("Первый Upsert должен вернуть inserted=true")
	}
	if card.ID == "" {
		t.Error("ID не установлен после Upsert")
	}
	if card.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// GetByID
	got, err := repo.GetByID(ctx, card.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Name != "Cancel" {
		t.Errorf("Name = %q, хотели %q", got.Name, "Cancel")
	}
	if got.Legalities["standard"] != model.LegalityLegal {
		t.Errorf("Legalities[standard] = %q, хотели %q", got.Legalities["standard"], model.LegalityLegal)
	}

	// GetByScryfallID
	got2, err := repo.GetByScryfallID(ctx, "sf-001")
	if err != nil {
		t.Fatalf("GetByScryfallID() ошибка: %v", err)
	}
	if got2.ID != card.ID {
		t.Errorf("ID = %q, хотели %q", got2.ID, card.ID)
	}

	// Повторный upsert с изменением — обновление, id сохраняется
	originalID := card.ID
	card.OracleText = "Counter target spell. Draw a card."
	card.Legalities["standard"] = model.LegalityBanned
	inserted2, err := repo.Upsert(ctx, card)
	if err != nil {
		t.Fatalf("Upsert() повторный ошибка: %v", err)
	}
	if inserted2 {
		t.Error("Повторный Upsert должен вернуть inserted=false")
	}
	if card.ID != originalID {
		t.Errorf("ID изменился после обновления: %q -> %q", originalID, card.ID)
	}

	got3, _ := repo.GetByScryfallID(ctx, "sf-001")
	if got3.Legalities["standard"] != model.LegalityBanned {
		t.Errorf("Legalities[standard] = %q, хотели %q", got3.Legalities["standard"], model.LegalityBanned)
	}

	// GetByID несуществующего
	_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != ErrNotFound {
		t.Errorf("Ожидали ErrNotFound, получили: %v", err)
	}
}

func TestCardSearch(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCardRepository(pool)

	cards := []*model.Card{
		testCard("sf-s1", "Bolt"),
		testCard("sf-s2", "Lightning Bolt"),
		testCard("sf-s3", "Bolt of Keranos"),
	}
	// У третьей карты standard не legal
	cards[2].Legalities = map[string]string{"standard": model.LegalityNotLegal, "modern": model.LegalityLegal}

	ins, upd, failed := repo.BatchUpsert(ctx, cards)
	if ins != 3 || upd != 0 || failed != 0 {
		t.Fatalf("BatchUpsert: inserted=%d, updated=%d, failed=%d; хотели 3/0/0", ins, upd, failed)
	}

	// Поиск по подстроке: сортировка — короткие имена первыми
	result, total, err := repo.Search(ctx, SearchParams{Name: "bolt", Limit: 20})
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, хотели 3", total)
	}
	if len(result) != 3 {
		t.Fatalf("Search() вернул %d карт, хотели 3", len(result))
	}
	if result[0].Name != "Bolt" {
		t.Errorf("Первый результат %q, хотели %q", result[0].Name, "Bolt")
	}

	// Фильтр легальности
	result2, total2, err := repo.Search(ctx, SearchParams{Name: "bolt", Format: "standard", Limit: 20})
	if err != nil {
		t.Fatalf("Search() с фильтром ошибка: %v", err)
	}
	if total2 != 2 {
		t.Errorf("total с фильтром = %d, хотели 2", total2)
	}
	for _, c := range result2 {
		if c.Legalities["standard"] != model.LegalityLegal {
			t.Errorf("Карта %q не legal в standard", c.Name)
		}
	}

	// Limit меньше общего количества
	result3, total3, err := repo.Search(ctx, SearchParams{Name: "bolt", Limit: 1})
	if err != nil {
		t.Fatalf("Search() с limit ошибка: %v", err)
	}
	if len(result3) != 1 || total3 != 3 {
		t.Errorf("len=%d total=%d, хотели len=1 total=3", len(result3), total3)
	}

	// Count
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, хотели 3", count)
	}
}

func TestCardSnapshot(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCardRepository(pool)

	cards := []*model.Card{
		testCard("sf-snap-1", "Alpha"),
		testCard("sf-snap-2", "Beta"),
	}
	repo.BatchUpsert(ctx, cards)

	snapshot, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() ошибка: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("Snapshot содержит %d записей, хотели 2", len(snapshot))
	}

	s, ok := snapshot["sf-snap-1"]
	if !ok {
		t.Fatal("В снапшоте отсутствует sf-snap-1")
	}
	if s.Name != "Alpha" {
		t.Errorf("Name = %q, хотели %q", s.Name, "Alpha")
	}
	if s.Legalities["modern"] != model.LegalityLegal {
		t.Errorf("Legalities[modern] = %q, хотели %q", s.Legalities["modern"], model.LegalityLegal)
	}
	if s.Prices["usd"] != "0.25" {
		t.Errorf("Prices[usd] = %q, хотели %q", s.Prices["usd"], "0.25")
	}
}

func TestCardNullableFields(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCardRepository(pool)

	// Карта только с обязательными полями
	card := &model.Card{
		ScryfallID: "sf-min",
		Name:       "Wastes",
		Colors:     []string{},
		Legalities: map[string]string{},
	}
	if _, err := repo.Upsert(ctx, card); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	got, err := repo.GetByScryfallID(ctx, "sf-min")
	if err != nil {
		t.Fatalf("GetByScryfallID() ошибка: %v", err)
	}
	// NULL в БД читается как пустая строка
	if got.OracleID != "" || got.ManaCost != "" || got.TypeLine != "" {
		t.Errorf("Nullable-поля должны быть пустыми строками: oracle_id=%q mana_cost=%q type_line=%q",
			got.OracleID, got.ManaCost, got.TypeLine)
	}
	if got.Colors == nil {
		t.Error("Colors = nil, хотели пустой slice")
	}
}

// --- Тесты SyncStateRepository ---

func TestSyncState(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSyncStateRepository(pool)

	// Get — начальная запись из миграции
	state, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if state.ID != 1 {
		t.Errorf("ID = %d, хотели 1", state.ID)
	}
	if state.LastSyncAt != nil {
		t.Errorf("LastSyncAt != nil для начальной записи")
	}
	if state.LastResult != "" {
		t.Errorf("LastResult = %q для начальной записи", state.LastResult)
	}

	// UpdateSyncResult
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.UpdateSyncResult(ctx, now, "success"); err != nil {
		t.Fatalf("UpdateSyncResult() ошибка: %v", err)
	}

	state2, _ := repo.Get(ctx)
	if state2.LastSyncAt == nil || !state2.LastSyncAt.Equal(now) {
		t.Errorf("LastSyncAt = %v, хотели %v", state2.LastSyncAt, now)
	}
	if state2.LastResult != "success" {
		t.Errorf("LastResult = %q, хотели %q", state2.LastResult, "success")
	}
}
