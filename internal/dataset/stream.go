// Пакет dataset — потоковый разбор bulk-датасета Scryfall.
// Датасет — JSON-массив объектов карт размером в сотни мегабайт,
// поэтому разбор идёт токенами, без загрузки файла в память целиком.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bigkaa/cardstore/internal/domain/model"
)

// ErrParse — структурная ошибка датасета. Прерывает разбор:
// частично обработанный датасет хуже, чем отложенный прогон.
var ErrParse = errors.New("ошибка разбора датасета")

// Размер буфера чтения файла датасета.
const readBufferSize = 256 * 1024

// scryfallCard — запись карты в bulk-датасете Scryfall.
// Prices содержит nullable-значения: отсутствующая цена приходит
// как JSON null.
type scryfallCard struct {
	ID            string             `json:"id"`
	OracleID      string             `json:"oracle_id"`
	Name          string             `json:"name"`
	ManaCost      string             `json:"mana_cost"`
	CMC           float64            `json:"cmc"`
	TypeLine      string             `json:"type_line"`
	OracleText    string             `json:"oracle_text"`
	Colors        []string           `json:"colors"`
	ColorIdentity []string           `json:"color_identity"`
	Legalities    map[string]string  `json:"legalities"`
	Prices        map[string]*string `json:"prices"`
	Rarity        string             `json:"rarity"`
	Set           string             `json:"set"`
}

// ForEachCard потоково разбирает JSON-массив карт из r, нормализует
// каждую запись и вызывает fn. Ненулевая ошибка fn прерывает разбор
// и возвращается как есть.
func ForEachCard(r io.Reader, fn func(*model.Card) error) error {
	dec := json.NewDecoder(bufio.NewReaderSize(r, readBufferSize))

	// Открывающая скобка массива
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: чтение начала датасета: %v", ErrParse, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("%w: датасет должен быть JSON-массивом, получен токен %v", ErrParse, tok)
	}

	var index int
	for dec.More() {
		var raw scryfallCard
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: запись #%d: %v", ErrParse, index, err)
		}

		card, err := normalize(&raw)
		if err != nil {
			return fmt.Errorf("%w: запись #%d: %v", ErrParse, index, err)
		}

		if err := fn(card); err != nil {
			return err
		}
		index++
	}

	// Закрывающая скобка массива
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: чтение конца датасета: %v", ErrParse, err)
	}

	return nil
}

// ForEachCardFile открывает файл датасета и разбирает его через ForEachCard.
func ForEachCardFile(path string, fn func(*model.Card) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("открытие файла датасета: %w", err)
	}
	defer f.Close()

	return ForEachCard(f, fn)
}

// normalize преобразует запись датасета в каноническую модель:
// nil-срезы и map становятся пустыми, null-цены отбрасываются,
// признак базовой земли вычисляется по строке типов.
func normalize(raw *scryfallCard) (*model.Card, error) {
	if raw.ID == "" {
		return nil, errors.New("отсутствует обязательное поле id")
	}
	if raw.Name == "" {
		return nil, errors.New("отсутствует обязательное поле name")
	}

	card := &model.Card{
		ScryfallID: raw.ID,
		OracleID:   raw.OracleID,
		Name:       raw.Name,
		ManaCost:   raw.ManaCost,
		CMC:        raw.CMC,
		TypeLine:   raw.TypeLine,
		OracleText: raw.OracleText,
		Rarity:     raw.Rarity,
		SetCode:    raw.Set,
	}

	card.Colors = raw.Colors
	if card.Colors == nil {
		card.Colors = []string{}
	}
	card.ColorIdentity = raw.ColorIdentity
	if card.ColorIdentity == nil {
		card.ColorIdentity = []string{}
	}

	card.Legalities = raw.Legalities
	if card.Legalities == nil {
		card.Legalities = map[string]string{}
	}

	card.Prices = make(map[string]string, len(raw.Prices))
	for currency, price := range raw.Prices {
		if price != nil && *price != "" {
			card.Prices[currency] = *price
		}
	}

	card.IsBasicLand = strings.Contains(card.TypeLine, "Basic Land")

	return card, nil
}
