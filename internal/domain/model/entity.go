// Пакет model — доменные модели Catalog Module.
// Сущности описываются явными whitelist-объектами, без иерархии типов:
// один обобщённый RecordStore обслуживает любую сущность по её описанию.
package model

import (
	"github.com/bigkaa/goartstore/catalog-module/internal/query"
)

// Entity — описание сущности каталога: таблица и таблицы разрешений.
type Entity struct {
	// Name — имя сущности (сегмент URL и префикс кэша)
	Name string
	// Table — таблица PostgreSQL
	Table string
	// Insertable — столбцы, принимаемые при создании
	Insertable query.Fields
	// Updatable — столбцы, принимаемые при обновлении
	Updatable query.Fields
	// Where — разрешённые фильтры и операторы
	Where query.FieldSpec
	// Sort — разрешённые поля сортировки
	Sort query.SortSpec
	// AssetField — столбец с путём к файлу ("" — у сущности нет файлов)
	AssetField string
	// CacheKeys — параметры запроса, от которых зависит ключ кэша списка
	CacheKeys []string
}

// HasAsset сообщает, может ли запись сущности нести файл.
func (e Entity) HasAsset() bool {
	return e.AssetField != ""
}

// Author — автор книги.
var Author = Entity{
	Name:       "author",
	Table:      "author",
	Insertable: query.Fields{"firstname", "lastname"},
	Updatable:  query.Fields{"firstname", "lastname"},
	Where: query.FieldSpec{
		"firstname": query.Like(),
		"lastname":  query.Like(),
		"id":        query.Comparable(),
	},
	Sort:      query.SortSpec{"id", "firstname", "lastname"},
	CacheKeys: []string{"firstname", "lastname", "id", "orderBy", "limit", "offset"},
}

// Book — книга; обложка хранится файлом в каталоге ассетов.
var Book = Entity{
	Name:       "book",
	Table:      "book",
	Insertable: query.Fields{"title", "date", "author_id", "description", "image"},
	Updatable:  query.Fields{"title", "date", "author_id", "description", "image"},
	Where: query.FieldSpec{
		"title":       query.Like(),
		"description": query.Like(),
		"id":          query.Comparable(),
		"author_id":   query.Comparable(),
		"date":        query.Comparable(),
	},
	Sort:       query.SortSpec{"id", "title", "description", "author_id"},
	AssetField: "image",
	CacheKeys:  []string{"title", "description", "id", "author_id", "date", "orderBy", "limit", "offset"},
}

// Entities — все сущности каталога.
var Entities = []Entity{Author, Book}

// Record — строка таблицы сущности, столбец → значение.
type Record = map[string]any
