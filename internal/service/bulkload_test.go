package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/cardstore/internal/config"
	"github.com/bigkaa/cardstore/internal/database"
	"github.com/bigkaa/cardstore/internal/domain/model"
)

// TestCSVField проверяет экранирование CSV-полей.
func TestCSVField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"пустая строка — NULL", "", ""},
		{"простое значение", "Lightning Bolt", "Lightning Bolt"},
		{"запятая", "Borrowing 100,000 Arrows", `"Borrowing 100,000 Arrows"`},
		{"кавычки", `"Ach! Hans, Run!"`, `"""Ach! Hans, Run!"""`},
		{"перевод строки", "Строка 1\nСтрока 2", "\"Строка 1\nСтрока 2\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := csvField(tt.input)
			if got != tt.want {
				t.Errorf("csvField(%q) = %q, хотели %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestArrayLiteral проверяет кодирование литералов массивов.
func TestArrayLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{"пустой срез", nil, "{}"},
		{"цвета", []string{"W", "U"}, "{W,U}"},
		{"элемент с запятой", []string{"a,b"}, `{"a,b"}`},
		{"элемент с кавычкой", []string{`a"b`}, `{"a\"b"}`},
		{"элемент с пробелом", []string{"a b"}, `{"a b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := arrayLiteral(tt.input)
			if got != tt.want {
				t.Errorf("arrayLiteral(%v) = %q, хотели %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestEncodeCopyRow проверяет кодирование полной строки COPY.
func TestEncodeCopyRow(t *testing.T) {
	card := &model.Card{
		ScryfallID:    "sf-001",
		OracleID:      "or-001",
		Name:          "Cancel",
		ManaCost:      "{1}{U}{U}",
		CMC:           3,
		TypeLine:      "Instant",
		OracleText:    "Counter target spell.",
		Colors:        []string{"U"},
		ColorIdentity: []string{"U"},
		Legalities:    map[string]string{"modern": "legal"},
		Prices:        map[string]string{"usd": "0.10"},
		IsBasicLand:   false,
		Rarity:        "common",
		SetCode:       "tst",
	}

	row := string(encodeCopyRow(card))
	if !strings.HasSuffix(row, "\n") {
		t.Error("Строка должна заканчиваться переводом строки")
	}
	want := `sf-001,or-001,Cancel,{1}{U}{U},3,Instant,Counter target spell.,{U},{U},"{""modern"":""legal""}","{""usd"":""0.10""}",false,common,tst` + "\n"
	if row != want {
		t.Errorf("encodeCopyRow:\n got:  %q\n want: %q", row, want)
	}
}

// TestEncodeCopyRow_EmptyOptional проверяет, что отсутствующие
// скаляры кодируются в NULL (пустое поле), а структурные поля —
// в пустые литералы.
func TestEncodeCopyRow_EmptyOptional(t *testing.T) {
	card := &model.Card{
		ScryfallID: "sf-min",
		Name:       "Wastes",
		Colors:     []string{},
		Legalities: map[string]string{},
	}

	row := string(encodeCopyRow(card))
	want := "sf-min,,Wastes,,0,,,{},{},{},{},false,,\n"
	if row != want {
		t.Errorf("encodeCopyRow:\n got:  %q\n want: %q", row, want)
	}
}

// setupBulkLoadDB запускает PostgreSQL контейнер и применяет миграции.
// Возвращает DSN для выделенного соединения и pgxpool.Pool для проверок.
func setupBulkLoadDB(t *testing.T) (string, *pgxpool.Pool) {
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

	logger := testLogger()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return cfg.DatabaseDSN(), pool
}

// countCards возвращает число строк в таблице cards.
func countCards(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		t.Fatalf("Подсчёт карт: %v", err)
	}
	return n
}

// TestFullLoad_Atomicity: ошибка посреди загрузки откатывает всю
// транзакцию — прежнее содержимое каталога остаётся нетронутым.
func TestFullLoad_Atomicity(t *testing.T) {
	dsn, pool := setupBulkLoadDB(t)
	ctx := context.Background()
	svc := NewBulkLoadService(dsn, testLogger())

	good := writeDataset(t, `[
		{"id": "sf-1", "name": "Lightning Bolt", "legalities": {"modern": "legal"}},
		{"id": "sf-2", "name": "Counterspell", "legalities": {"modern": "legal"}}
	]`)

	loaded, err := svc.FullLoad(ctx, good)
	if err != nil {
		t.Fatalf("FullLoad() ошибка: %v", err)
	}
	if loaded != 2 {
		t.Errorf("FullLoad() = %d, хотели 2", loaded)
	}
	if n := countCards(t, pool); n != 2 {
		t.Fatalf("В каталоге %d карт, хотели 2", n)
	}

	// Датасет обрывается после первой валидной записи: COPY падает,
	// TRUNCATE откатывается вместе с транзакцией
	bad := writeDataset(t, `[{"id": "sf-3", "name": "Black Lotus"}, {"id": "sf-`)

	if _, err := svc.FullLoad(ctx, bad); err == nil {
		t.Fatal("FullLoad() на повреждённом датасете должен вернуть ошибку")
	}
	if n := countCards(t, pool); n != 2 {
		t.Errorf("После отката в каталоге %d карт, хотели прежние 2", n)
	}

	// Прежние записи действительно уцелели
	var name string
	if err := pool.QueryRow(ctx, `SELECT name FROM cards WHERE scryfall_id = 'sf-1'`).Scan(&name); err != nil {
		t.Fatalf("Чтение уцелевшей карты: %v", err)
	}
	if name != "Lightning Bolt" {
		t.Errorf("name = %q, хотели %q", name, "Lightning Bolt")
	}
}
