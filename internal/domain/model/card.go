// Пакет model — доменные модели Cardstore.
package model

import "time"

// Статусы легальности карты в формате.
// Фиксированный словарь значений в legalities (Scryfall bulk data).
const (
	LegalityLegal      = "legal"
	LegalityNotLegal   = "not_legal"
	LegalityRestricted = "restricted"
	LegalityBanned     = "banned"
)

// Card — каноническая запись карты в каталоге.
// Первичный ключ — UUID (присваивается БД), естественный ключ
// для upsert и change detection — ScryfallID.
type Card struct {
	// ID — UUID записи в БД (PK)
	ID string
	// ScryfallID — стабильный идентификатор карты у Scryfall (уникальный)
	ScryfallID string
	// OracleID — группирует издания одной логической карты (не уникален)
	OracleID string
	// Name — имя карты (обязательное)
	Name string
	// ManaCost — строка мановой стоимости, например "{2}{U}{U}"
	ManaCost string
	// CMC — численная суммарная стоимость
	CMC float64
	// TypeLine — строка типов карты
	TypeLine string
	// OracleText — текст правил
	OracleText string
	// Colors — цвета карты (пустой срез, если отсутствуют)
	Colors []string
	// ColorIdentity — цветовая идентичность
	ColorIdentity []string
	// Legalities — формат → статус легальности
	Legalities map[string]string
	// Prices — валюта → цена строкой ("usd" → "0.25")
	Prices map[string]string
	// IsBasicLand — вычисляется по подстроке "Basic Land" в TypeLine
	IsBasicLand bool
	// Rarity — редкость (common, uncommon, rare, mythic)
	Rarity string
	// SetCode — код выпуска
	SetCode string
	// CreatedAt — время первого появления записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// CardSnapshot — облегчённая проекция существующей записи для change detection.
// Содержит только поля, участвующие в сравнении, чтобы ограничить память
// при построении снапшота всего каталога.
type CardSnapshot struct {
	ScryfallID string
	Name       string
	ManaCost   string
	TypeLine   string
	OracleText string
	Legalities map[string]string
	Prices     map[string]string
}
