// Пакет scryfall — HTTP-клиент Scryfall API.
// Операции: ResolveDatasetURL (discovery bulk-датасетов через
// GET /bulk-data) и Download (потоковое скачивание датасета).
package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ошибки клиента Scryfall.
var (
	// ErrTransport — сетевая ошибка (DNS, соединение, обрыв потока)
	ErrTransport = errors.New("сетевая ошибка при обращении к Scryfall")
	// ErrUpstream — Scryfall вернул не-2xx статус
	ErrUpstream = errors.New("Scryfall вернул ошибку")
	// ErrDatasetNotFound — в ответе discovery нет датасета нужного типа
	ErrDatasetNotFound = errors.New("датасет нужного типа не найден в ответе Scryfall")
)

var (
	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardstore_scryfall_download_bytes_total",
		Help: "Суммарный объём скачанных с Scryfall данных в байтах",
	})
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardstore_scryfall_requests_total",
		Help: "Количество запросов к Scryfall API по операциям и результатам",
	}, []string{"operation", "result"})
)

const (
	// Размер чанка при потоковом скачивании
	downloadChunkSize = 64 * 1024
	// Таймаут discovery-запросов
	apiTimeout = 30 * time.Second
)

// bulkDataEntry — элемент списка bulk-датасетов (ответ GET /bulk-data).
type bulkDataEntry struct {
	Type        string `json:"type"`
	DownloadURI string `json:"download_uri"`
	UpdatedAt   string `json:"updated_at"`
	Size        int64  `json:"size"`
}

// bulkDataList — ответ discovery endpoint.
type bulkDataList struct {
	Data []bulkDataEntry `json:"data"`
}

// ProgressFunc вызывается по мере скачивания.
// total == 0, если сервер не сообщил Content-Length.
type ProgressFunc func(done, total int64)

// Client — HTTP-клиент Scryfall.
type Client struct {
	baseURL      string
	bulkDataType string
	// apiClient — для discovery-запросов, с таймаутом
	apiClient *http.Client
	// downloadClient — для скачивания датасета, без общего таймаута:
	// датасет большой, время ограничивается контекстом
	downloadClient *http.Client
	logger         *slog.Logger
}

// New создаёт клиент Scryfall.
func New(baseURL, bulkDataType string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		bulkDataType:   bulkDataType,
		apiClient:      &http.Client{Timeout: apiTimeout},
		downloadClient: &http.Client{},
		logger:         logger.With(slog.String("component", "scryfall_client")),
	}
}

// ResolveDatasetURL запрашивает discovery endpoint и возвращает
// download URL датасета сконфигурированного типа.
func (c *Client) ResolveDatasetURL(ctx context.Context) (string, error) {
	reqURL := c.baseURL + "/bulk-data"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("создание запроса bulk-data: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		apiRequestsTotal.WithLabelValues("resolve", "error").Inc()
		return "", fmt.Errorf("%w: запрос bulk-data: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiRequestsTotal.WithLabelValues("resolve", "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: bulk-data статус %d: %s", ErrUpstream, resp.StatusCode, string(body))
	}

	var list bulkDataList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		apiRequestsTotal.WithLabelValues("resolve", "error").Inc()
		return "", fmt.Errorf("%w: декодирование bulk-data: %v", ErrUpstream, err)
	}

	for _, entry := range list.Data {
		if entry.Type == c.bulkDataType {
			if entry.DownloadURI == "" {
				return "", fmt.Errorf("%w: у датасета %q пустой download_uri", ErrDatasetNotFound, c.bulkDataType)
			}
			apiRequestsTotal.WithLabelValues("resolve", "success").Inc()
			c.logger.Info("Датасет найден",
				slog.String("type", entry.Type),
				slog.String("updated_at", entry.UpdatedAt),
				slog.Int64("size", entry.Size),
			)
			return entry.DownloadURI, nil
		}
	}

	apiRequestsTotal.WithLabelValues("resolve", "error").Inc()
	return "", fmt.Errorf("%w: тип %q", ErrDatasetNotFound, c.bulkDataType)
}

// Download скачивает датасет по URL, потоково записывая его в sink
// чанками по 64 КиБ. onProgress (может быть nil) вызывается после
// каждого записанного чанка.
func (c *Client) Download(ctx context.Context, url string, sink io.Writer, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("создание запроса скачивания: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		apiRequestsTotal.WithLabelValues("download", "error").Inc()
		return fmt.Errorf("%w: скачивание датасета: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiRequestsTotal.WithLabelValues("download", "error").Inc()
		return fmt.Errorf("%w: скачивание датасета, статус %d", ErrUpstream, resp.StatusCode)
	}

	// ContentLength == -1, если сервер не сообщил размер
	var total int64
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	var done int64
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				apiRequestsTotal.WithLabelValues("download", "error").Inc()
				return fmt.Errorf("запись датасета: %w", werr)
			}
			done += int64(n)
			downloadBytesTotal.Add(float64(n))
			if onProgress != nil {
				onProgress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			apiRequestsTotal.WithLabelValues("download", "error").Inc()
			return fmt.Errorf("%w: чтение потока датасета: %v", ErrTransport, readErr)
		}
	}

	apiRequestsTotal.WithLabelValues("download", "success").Inc()
	c.logger.Info("Датасет скачан", slog.Int64("bytes", done))
	return nil
}
