package catalog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// toDecimal приводит значение к числу. Нечисловые строки и диапазоны
// ("1.00 -- 2.00") не считаются числом: вызывающий получает false, а не ноль.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case json.Number:
		return parseDecimal(val.String())
	case string:
		return parseDecimal(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	default:
		return decimal.Zero, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// toInt приводит значение к целому. Дробные значения отвергаются.
func toInt(v any) (int, bool) {
	d, ok := toDecimal(v)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) || d.LessThan(decimal.NewFromInt(math.MinInt32)) {
		return 0, false
	}
	return int(d.IntPart()), true
}

// toString приводит идентификатор к строке. Числа форматируются без
// экспоненты и дробной части, если она нулевая.
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return strings.TrimSpace(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return decimal.NewFromFloat(val).String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

// firstString возвращает первое непустое строковое значение по списку ключей
func firstString(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := toString(rec[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstDecimal возвращает первое числовое значение по списку ключей
func firstDecimal(rec map[string]any, keys ...string) *decimal.Decimal {
	for _, key := range keys {
		if d, ok := toDecimal(rec[key]); ok {
			return &d
		}
	}
	return nil
}

// firstInt возвращает первое целое значение по списку ключей
func firstInt(rec map[string]any, keys ...string) *int {
	for _, key := range keys {
		if n, ok := toInt(rec[key]); ok {
			return &n
		}
	}
	return nil
}
