package query

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Служебные ключи выборки в строке запроса.
const (
	keyOrderBy = "orderBy"
	keyLimit   = "limit"
	keyOffset  = "offset"
)

// errSemicolon — ';' в строке запроса не является разделителем пар.
var errSemicolon = errors.New("недопустимый разделитель ';' в строке запроса")

// ParseQuery разбирает строку запроса URL в Params с сохранением порядка
// ключей. Квадратные скобки задают вложенность: id[gt]=5 → {id: {gt: "5"}}.
// Повторяющиеся ключи собираются в []string, a[]=1&a[]=2 — тоже.
// Некорректно закодированные пары и пары с ';' пропускаются так же,
// как в url.ParseQuery, возвращается первая ошибка. Ключ кэша строится
// по url.Values, поэтому обе разборки видят один и тот же набор пар.
func ParseQuery(rawQuery string) (*Params, error) {
	params := NewParams()
	var firstErr error

	for part := range strings.SplitSeq(rawQuery, "&") {
		if part == "" {
			continue
		}
		if strings.Contains(part, ";") {
			if firstErr == nil {
				firstErr = errSemicolon
			}
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if key == "" {
			continue
		}

		assign(params, splitKey(key), value)
	}

	return params, firstErr
}

// splitKey разбивает "a[b][c]" на ["a", "b", "c"].
// Ключ с нарушенной скобочной записью считается обычным ключом.
func splitKey(key string) []string {
	i := strings.IndexByte(key, '[')
	if i <= 0 {
		return []string{key}
	}

	path := []string{key[:i]}
	rest := key[i:]
	for rest != "" {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

// assign записывает значение по пути вложенных ключей.
// Конфликт типов (строка там, где уже отображение, и наоборот) —
// новое значение отбрасывается.
func assign(p *Params, path []string, value string) {
	key := path[0]
	existing, present := p.Get(key)

	if len(path) == 1 || (len(path) == 2 && path[1] == "") {
		switch cur := existing.(type) {
		case nil:
			if len(path) == 2 {
				p.Set(key, []string{value})
			} else {
				p.Set(key, value)
			}
		case string:
			p.Set(key, []string{cur, value})
		case []string:
			p.Set(key, append(cur, value))
		}
		return
	}

	child, ok := existing.(*Params)
	if !ok {
		if present {
			return
		}
		child = NewParams()
		p.Set(key, child)
	}
	assign(child, path[1:], value)
}

// SelectParamsFrom выделяет из параметров запроса сортировку и пагинацию,
// остальные ключи становятся фильтрами. Некорректные limit/offset
// заменяются значениями по умолчанию, limit ограничен MaxLimit.
func SelectParamsFrom(params *Params) SelectParams {
	sel := SelectParams{
		Limit:   DefaultLimit,
		Filters: NewParams(),
	}

	for _, e := range entries(params) {
		switch e.key {
		case keyOrderBy:
			if ob, ok := e.value.(*Params); ok {
				sel.OrderBy = ob
			} else {
				// Сортировка задана, но не отображением — ничего не принимаем.
				sel.OrderBy = NewParams()
			}
		case keyLimit:
			if n, ok := intValue(e.value); ok && n > 0 {
				sel.Limit = min(n, MaxLimit)
			}
		case keyOffset:
			if n, ok := intValue(e.value); ok && n > 0 {
				sel.Offset = n
			}
		default:
			sel.Filters.Set(e.key, e.value)
		}
	}

	return sel
}

// intValue разбирает целое из строкового значения параметра.
func intValue(v any) (int, bool) {
	s, ok := scalar(v)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
