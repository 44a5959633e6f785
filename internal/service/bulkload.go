// bulkload.go — полная загрузка каталога из файла датасета.
//
// BulkLoadService заменяет содержимое таблицы cards целиком:
// TRUNCATE + потоковый COPY FROM STDIN в одной транзакции.
// Откат транзакции при любой ошибке оставляет каталог нетронутым.
//
// Используется выделенное соединение вне пула: COPY монополизирует
// соединение на всё время загрузки.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/cardstore/internal/database"
	"github.com/bigkaa/cardstore/internal/dataset"
	"github.com/bigkaa/cardstore/internal/domain/model"
)

var (
	fullLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardstore_full_load_duration_seconds",
		Help:    "Длительность полной загрузки каталога",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s … ~512s
	})

	fullLoadRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_full_load_records_total",
		Help: "Количество записей, загруженных полной загрузкой",
	})
)

// copySQL — COPY-команда загрузки каталога. NULL '' означает, что
// пустое незакавыченное поле интерпретируется как NULL (симметрично
// COALESCE при чтении nullable-скаляров).
const copySQL = `COPY cards (scryfall_id, oracle_id, name, mana_cost, cmc,
	type_line, oracle_text, colors, color_identity, legalities, prices,
	is_basic_land, rarity, set_code)
	FROM STDIN WITH (FORMAT csv, NULL '')`

// BulkLoadService — сервис полной загрузки каталога.
type BulkLoadService struct {
	dsn    string
	logger *slog.Logger
}

// NewBulkLoadService создаёт сервис полной загрузки.
// dsn — строка подключения для выделенного соединения.
func NewBulkLoadService(dsn string, logger *slog.Logger) *BulkLoadService {
	return &BulkLoadService{
		dsn:    dsn,
		logger: logger.With(slog.String("component", "bulk_load")),
	}
}

// FullLoad загружает датасет в каталог целиком, заменяя прежнее
// содержимое. Возвращает количество загруженных записей.
func (s *BulkLoadService) FullLoad(ctx context.Context, path string) (int64, error) {
	startedAt := time.Now()

	conn, err := database.ConnectDedicated(ctx, s.dsn)
	if err != nil {
		return 0, fmt.Errorf("выделенное соединение для COPY: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("начало транзакции полной загрузки: %w", err)
	}
	// Rollback после Commit — no-op
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE cards`); err != nil {
		return 0, fmt.Errorf("очистка каталога: %w", err)
	}

	// Датасет кодируется в CSV-строки в отдельной горутине и потоком
	// уходит в COPY через pipe. Ошибка разбора закрывает pipe с ошибкой,
	// CopyFrom завершается неудачей, транзакция откатывается.
	pr, pw := io.Pipe()

	go func() {
		encodeErr := dataset.ForEachCardFile(path, func(card *model.Card) error {
			_, werr := pw.Write(encodeCopyRow(card))
			return werr
		})
		pw.CloseWithError(encodeErr)
	}()

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, pr, copySQL)
	if err != nil {
		// Дочитываем pipe, чтобы горутина-кодировщик не зависла
		pr.CloseWithError(err)
		return 0, fmt.Errorf("COPY в каталог: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("фиксация полной загрузки: %w", err)
	}

	// Число загруженных строк по отчёту самого COPY
	count := tag.RowsAffected()

	elapsed := time.Since(startedAt)
	fullLoadDuration.Observe(elapsed.Seconds())
	fullLoadRecordsTotal.Add(float64(count))

	s.logger.Info("Полная загрузка каталога завершена",
		slog.Int64("records", count),
		slog.String("duration", fmt.Sprintf("%.1fs", elapsed.Seconds())),
	)

	return count, nil
}

// encodeCopyRow кодирует карту в одну CSV-строку для COPY.
// Порядок полей соответствует copySQL.
func encodeCopyRow(c *model.Card) []byte {
	fields := []string{
		csvField(c.ScryfallID),
		csvField(c.OracleID),
		csvField(c.Name),
		csvField(c.ManaCost),
		strconv.FormatFloat(c.CMC, 'f', -1, 64),
		csvField(c.TypeLine),
		csvField(c.OracleText),
		csvField(arrayLiteral(c.Colors)),
		csvField(arrayLiteral(c.ColorIdentity)),
		csvField(jsonLiteral(c.Legalities)),
		csvField(jsonLiteral(c.Prices)),
		strconv.FormatBool(c.IsBasicLand),
		csvField(c.Rarity),
		csvField(c.SetCode),
	}
	return []byte(strings.Join(fields, ",") + "\n")
}

// csvField экранирует значение CSV-поля. Пустая строка остаётся
// пустой (NULL по правилу NULL ''), значения со спецсимволами
// оборачиваются в кавычки с удвоением внутренних кавычек.
func csvField(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// arrayLiteral кодирует срез строк в литерал PostgreSQL-массива.
func arrayLiteral(items []string) string {
	if len(items) == 0 {
		return "{}"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = arrayElement(item)
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// arrayElement экранирует элемент литерала массива: элементы со
// спецсимволами оборачиваются в двойные кавычки, внутри которых
// \ и " экранируются обратным слэшем.
func arrayElement(s string) string {
	if s != "" && !strings.ContainsAny(s, `,"\{} `) {
		return s
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// jsonLiteral кодирует map в JSON-объект для JSONB-столбца.
func jsonLiteral(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	// Ошибка невозможна для map[string]string
	b, _ := json.Marshal(m)
	return string(b)
}
