// Пакет query — построение параметризованных SQL-запросов по whitelist.
// Идентификаторы и операторы берутся только из таблиц разрешений сущности,
// значения всегда передаются как bind-параметры, никогда не интерполируются.
// Пакет не выполняет I/O.
package query

import (
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Params — упорядоченный набор параметров запроса со слабой типизацией.
// Порядок обхода совпадает с порядком появления ключей во входных данных.
// Значения: string, []string, *Params, числа или любые данные от клиента.
type Params = orderedmap.OrderedMap[string, any]

// NewParams создаёт пустой набор параметров.
func NewParams() *Params {
	return orderedmap.New[string, any]()
}

// Токены операторов сравнения в фильтрах.
const (
	OpGT   = "gt"
	OpGTE  = "gte"
	OpEQ   = "eq"
	OpLT   = "lt"
	OpLTE  = "lte"
	OpLike = "like"
)

// Operators — соответствие токен оператора → SQL-оператор.
type Operators map[string]string

// FieldSpec — разрешённые для фильтрации поля и их операторы.
// В SQL попадают только объявленные пары (поле, оператор),
// остальное молча отбрасывается.
type FieldSpec map[string]Operators

// Comparable возвращает набор операторов сравнения gt, gte, eq, lt, lte.
func Comparable() Operators {
	return Operators{
		OpGT:  ">",
		OpGTE: ">=",
		OpEQ:  "=",
		OpLT:  "<",
		OpLTE: "<=",
	}
}

// Like возвращает набор из единственного оператора like.
func Like() Operators {
	return Operators{OpLike: "LIKE"}
}

// operator возвращает SQL-оператор для пары (поле, токен).
func (s FieldSpec) operator(field, op string) (string, bool) {
	ops, ok := s[field]
	if !ok {
		return "", false
	}
	sqlOp, ok := ops[op]
	return sqlOp, ok
}

// SortSpec — поля, по которым разрешена сортировка.
type SortSpec []string

// Allows проверяет, разрешена ли сортировка по полю.
func (s SortSpec) Allows(field string) bool {
	return slices.Contains(s, field)
}

// Fields — упорядоченный набор столбцов, принимаемых сущностью при записи.
type Fields []string

// Contains проверяет, входит ли столбец в набор.
func (f Fields) Contains(column string) bool {
	return slices.Contains(f, column)
}
