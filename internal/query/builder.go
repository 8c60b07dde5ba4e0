package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Значения пагинации по умолчанию.
const (
	// DefaultLimit — лимит строк, если клиент его не задал.
	DefaultLimit = 100
	// MaxLimit — верхняя граница лимита строк.
	MaxLimit = 1000
)

// Statement — построенный запрос и его bind-параметры в порядке плейсхолдеров.
// Пустой SQL означает no-op: допустимых полей не осталось, выполнять нечего.
type Statement struct {
	SQL  string
	Args []any
}

// IsNoOp сообщает, что запрос пуст и его не нужно выполнять.
func (s Statement) IsNoOp() bool {
	return s.SQL == ""
}

// SelectParams — параметры выборки: сортировка, пагинация и фильтры.
// Нулевое значение соответствует значениям по умолчанию:
// ORDER BY id ASC, LIMIT 100, OFFSET 0, без фильтров.
type SelectParams struct {
	// OrderBy — поле → направление (ASC/DESC). nil — сортировка по id ASC.
	OrderBy *Params
	// Limit — количество строк (<= 0 — DefaultLimit)
	Limit int
	// Offset — смещение (< 0 — 0)
	Offset int
	// Filters — поле → (оператор → значение)
	Filters *Params
}

// BuildInsert строит INSERT по разрешённым столбцам.
// Столбец и его значение добавляются за один проход, только если ключ
// входит в fields. Если допустимых ключей нет — возвращается no-op.
func BuildInsert(table string, fields Fields, params *Params) Statement {
	columns, args := filterColumns(fields, params)
	if len(columns) == 0 {
		return Statement{}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	return Statement{
		SQL:  fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ","), placeholders),
		Args: args,
	}
}

// BuildUpdate строит UPDATE ... SET ... по разрешённым столбцам.
// Условие на строку и его параметры добавляет вызывающий код
// (repository.ExecUpdate дописывает WHERE id = ?).
// Если допустимых ключей нет — возвращается no-op.
func BuildUpdate(table string, fields Fields, params *Params) Statement {
	columns, args := filterColumns(fields, params)
	if len(columns) == 0 {
		return Statement{}
	}

	set := make([]string, 0, len(columns))
	for _, c := range columns {
		set = append(set, c+" = ?")
	}
	return Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(set, ", ")),
		Args: args,
	}
}

// filterColumns — общий проход фильтрации для INSERT и UPDATE.
func filterColumns(fields Fields, params *Params) (columns []string, args []any) {
	if params == nil {
		return nil, nil
	}
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		if !fields.Contains(pair.Key) {
			continue
		}
		columns = append(columns, pair.Key)
		args = append(args, writeValue(pair.Value))
	}
	return columns, args
}

// writeValue нормализует значение столбца: у массива берётся первый элемент.
func writeValue(v any) any {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	case []any:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	default:
		return v
	}
}

// BuildWhere строит WHERE из фильтров вида поле → (оператор → значение).
// Условие принимается, только если поле и оператор объявлены в spec,
// а значение — строка (у массива берётся первый элемент). Условия
// объединяются через AND в порядке появления. Ни одного принятого
// условия — пустая строка, то есть выборка без фильтра.
func BuildWhere(spec FieldSpec, params *Params) (whereClause string, args []any) {
	var conditions []string

	for _, field := range entries(params) {
		ops, ok := asEntries(field.value)
		if !ok {
			continue
		}
		for _, op := range ops {
			value, ok := scalar(op.value)
			if !ok {
				continue
			}
			sqlOp, ok := spec.operator(field.key, op.key)
			if !ok {
				continue
			}
			conditions = append(conditions, fmt.Sprintf("%s %s ?", field.key, sqlOp))
			args = append(args, value)
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// BuildOrder строит ORDER BY по разрешённым полям.
// Направление — ASC или DESC без учёта регистра; остальное отбрасывается.
func BuildOrder(spec SortSpec, orderBy *Params) string {
	var order []string

	for _, e := range entries(orderBy) {
		dir, ok := scalar(e.value)
		if !ok {
			continue
		}
		dir = strings.ToUpper(dir)
		if !spec.Allows(e.key) || (dir != "ASC" && dir != "DESC") {
			continue
		}
		order = append(order, e.key+" "+dir)
	}

	if len(order) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(order, ", ")
}

// BuildSelect собирает SELECT * с WHERE, ORDER BY и обязательными
// LIMIT ? OFFSET ?. Неограниченной выборки нет: limit и offset всегда
// идут последними bind-параметрами.
func BuildSelect(table string, where FieldSpec, sortSpec SortSpec, sel SelectParams) Statement {
	parts := []string{"SELECT * FROM " + table}

	whereClause, args := BuildWhere(where, sel.Filters)
	if whereClause != "" {
		parts = append(parts, whereClause)
	}

	orderBy := sel.OrderBy
	if orderBy == nil {
		orderBy = NewParams()
		orderBy.Set("id", "ASC")
	}
	if order := BuildOrder(sortSpec, orderBy); order != "" {
		parts = append(parts, order)
	}

	limit := sel.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(sel.Offset, 0)

	parts = append(parts, "LIMIT ? OFFSET ?")
	return Statement{
		SQL:  strings.Join(parts, " "),
		Args: append(args, limit, offset),
	}
}

// Rebind переводит плейсхолдеры ? в позиционную форму PostgreSQL ($1, $2, ...).
// Построенный SQL не содержит строковых литералов, поэтому каждый ? — параметр.
func Rebind(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)

	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			b.WriteByte(sql[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// entry — пара ключ/значение в порядке обхода.
type entry struct {
	key   string
	value any
}

// entries возвращает пары Params в порядке появления.
func entries(p *Params) []entry {
	if p == nil {
		return nil
	}
	out := make([]entry, 0, p.Len())
	for pair := p.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, entry{key: pair.Key, value: pair.Value})
	}
	return out
}

// asEntries приводит вложенное отображение к списку пар.
// map[string]any (из JSON) обходится в порядке сортировки ключей.
func asEntries(v any) ([]entry, bool) {
	switch t := v.(type) {
	case *Params:
		return entries(t), t != nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]entry, 0, len(keys))
		for _, k := range keys {
			out = append(out, entry{key: k, value: t[k]})
		}
		return out, true
	default:
		return nil, false
	}
}

// scalar извлекает строковое значение: строка как есть, у массива —
// первый элемент, если он строка. Всё остальное отвергается.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		if len(t) == 0 {
			return "", false
		}
		return t[0], true
	case []any:
		if len(t) == 0 {
			return "", false
		}
		s, ok := t[0].(string)
		return s, ok
	default:
		return "", false
	}
}
