// Пакет config — загрузка и валидация конфигурации Cardstore
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Cardstore.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Scryfall ---

	// Базовый URL Scryfall API
	ScryfallBaseURL string
	// Тип bulk-датасета в discovery endpoint (обычно default_cards)
	BulkDataType string

	// --- Синхронизация каталога ---

	// Включена ли периодическая синхронизация
	SyncEnabled bool
	// Задержка первого запуска после старта приложения
	SyncStartDelay time.Duration
	// Интервал между прогонами (отсчитывается от конца предыдущей попытки)
	SyncInterval time.Duration
	// Размер батча при инкрементальной синхронизации
	SyncBatchSize int

	// --- Кэш карт ---

	// Максимальное количество записей в LRU-кэше
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Имя группы topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CS_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("CS_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("CS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CS_LOG_LEVEL: %w", err)
	}

	// CS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// CS_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CS_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CS_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CS_DB_PORT: %w", err)
	}

	// CS_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CS_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CS_DB_USER")
	if err != nil {
		return nil, err
	}

	// CS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CS_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Scryfall ---

	// CS_SCRYFALL_URL — базовый URL API (по умолчанию https://api.scryfall.com)
	cfg.ScryfallBaseURL = strings.TrimRight(getEnvDefault("CS_SCRYFALL_URL", "https://api.scryfall.com"), "/")

	// CS_BULK_DATA_TYPE — тип датасета (по умолчанию default_cards)
	cfg.BulkDataType = getEnvDefault("CS_BULK_DATA_TYPE", "default_cards")

	// --- Синхронизация каталога ---

	// CS_SYNC_ENABLED — включение периодической синхронизации (по умолчанию true)
	cfg.SyncEnabled, err = getEnvBool("CS_SYNC_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("CS_SYNC_ENABLED: %w", err)
	}

	// CS_SYNC_START_DELAY — задержка первого запуска (по умолчанию 30s),
	// чтобы не конкурировать с загрузкой приложения
	cfg.SyncStartDelay, err = getEnvDuration("CS_SYNC_START_DELAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_SYNC_START_DELAY: %w", err)
	}

	// CS_SYNC_INTERVAL — интервал синхронизации (по умолчанию 24h)
	cfg.SyncInterval, err = getEnvDuration("CS_SYNC_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CS_SYNC_INTERVAL: %w", err)
	}

	// CS_SYNC_BATCH_SIZE — размер батча (по умолчанию 500)
	cfg.SyncBatchSize, err = getEnvInt("CS_SYNC_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("CS_SYNC_BATCH_SIZE: %w", err)
	}
	if cfg.SyncBatchSize < 1 || cfg.SyncBatchSize > 10000 {
		return nil, fmt.Errorf("CS_SYNC_BATCH_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.SyncBatchSize)
	}

	// --- Кэш карт ---

	// CS_CACHE_SIZE — размер LRU-кэша (по умолчанию 4096)
	cfg.CacheSize, err = getEnvInt("CS_CACHE_SIZE", 4096)
	if err != nil {
		return nil, fmt.Errorf("CS_CACHE_SIZE: %w", err)
	}

	// CS_CACHE_TTL — TTL записи кэша (по умолчанию 10m)
	cfg.CacheTTL, err = getEnvDuration("CS_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CS_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// CS_DEPHEALTH_GROUP — имя группы (по умолчанию cardstore)
	cfg.DephealthGroup = getEnvDefault("CS_DEPHEALTH_GROUP", "cardstore")

	// CS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик и миграций).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
