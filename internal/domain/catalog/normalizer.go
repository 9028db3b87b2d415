package catalog

import (
	"sort"
	"strconv"
)

// Shape - известная форма ответа каталога поставщика.
// Поставщик меняет формат без версионирования, поэтому набор форм закрыт,
// а все неизвестное попадает в ShapeUnrecognized.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	// ShapeFlatList - записи в верхнеуровневом list
	ShapeFlatList
	// ShapeNestedContent - content это список оберток, первая содержит productList
	ShapeNestedContent
	// ShapeContentList - content это список самих записей
	ShapeContentList
	// ShapeContentMap - content это объект с productList
	ShapeContentMap
	// ShapeProductList - записи в верхнеуровневом productList
	ShapeProductList
)

func (s Shape) String() string {
	switch s {
	case ShapeFlatList:
		return "flat_list"
	case ShapeNestedContent:
		return "nested_content"
	case ShapeContentList:
		return "content_list"
	case ShapeContentMap:
		return "content_map"
	case ShapeProductList:
		return "product_list"
	default:
		return "unrecognized"
	}
}

// PageMeta - сведения о пагинации, присланные рядом с записями
type PageMeta map[string]any

// ClassifyPayload определяет форму ответа. Порядок проверок важен: побеждает первое совпадение.
func ClassifyPayload(payload map[string]any) Shape {
	if payload == nil {
		return ShapeUnrecognized
	}

	if _, ok := asList(payload["list"]); ok {
		return ShapeFlatList
	}

	if content, ok := asList(payload["content"]); ok {
		if len(content) > 0 {
			if first, ok := content[0].(map[string]any); ok {
				if _, has := first["productList"]; has {
					return ShapeNestedContent
				}
			}
		}
		return ShapeContentList
	}

	if content, ok := payload["content"].(map[string]any); ok {
		if _, has := content["productList"]; has {
			return ShapeContentMap
		}
	}

	if _, ok := asList(payload["productList"]); ok {
		return ShapeProductList
	}

	return ShapeUnrecognized
}

// Normalize приводит ответ поставщика к паре (мета страницы, записи).
// Никогда не паникует: нераспознанный ответ дает пустой результат.
// Возвращаемый срез записей никогда не nil.
func Normalize(payload map[string]any) (PageMeta, []map[string]any) {
	meta := PageMeta{}

	switch ClassifyPayload(payload) {
	case ShapeFlatList:
		list, _ := asList(payload["list"])
		return meta, records(list)

	case ShapeNestedContent:
		content, _ := asList(payload["content"])
		first := content[0].(map[string]any)
		list, _ := asList(first["productList"])
		return PageMeta(first), records(list)

	case ShapeContentList:
		content, _ := asList(payload["content"])
		return meta, records(content)

	case ShapeContentMap:
		content := payload["content"].(map[string]any)
		list, _ := asList(content["productList"])
		return PageMeta(content), records(list)

	case ShapeProductList:
		list, _ := asList(payload["productList"])
		return meta, records(list)

	default:
		return meta, []map[string]any{}
	}
}

// UnwrapDetail достает карточку одного товара из ответа detail-запроса.
// Поддерживаются: сама карточка, обертка data, список из одного элемента
// в любой из форм, которые понимает Normalize.
func UnwrapDetail(payload map[string]any) (map[string]any, bool) {
	if payload == nil {
		return nil, false
	}

	if data, ok := payload["data"].(map[string]any); ok {
		return UnwrapDetail(data)
	}

	if ExternalID(payload) != "" {
		return payload, true
	}

	_, list := Normalize(payload)
	if len(list) > 0 {
		return list[0], true
	}

	return nil, false
}

// PageNum возвращает номер страницы, если он указан
func (m PageMeta) PageNum() *int {
	return m.firstInt("pageNum", "pageNumber", "page")
}

// PageSize возвращает размер страницы, если он указан
func (m PageMeta) PageSize() *int {
	return m.firstInt("pageSize", "size", "limit")
}

// Total возвращает общее количество записей, если оно указано
func (m PageMeta) Total() *int {
	return m.firstInt("total", "totalRecords", "totalCount")
}

// TotalPages возвращает общее количество страниц, если оно указано
func (m PageMeta) TotalPages() *int {
	return m.firstInt("totalPages", "totalPage", "pages")
}

func (m PageMeta) firstInt(keys ...string) *int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if n, ok := toInt(v); ok {
				return &n
			}
		}
	}
	return nil
}

// asList распознает список: массив JSON или объект с числовыми ключами,
// который PHP-бэкенды отдают вместо массива.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []map[string]any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = val[i]
		}
		return out, true
	case map[string]any:
		if len(val) == 0 {
			return nil, false
		}
		type indexed struct {
			n   int
			key string
		}
		keys := make([]indexed, 0, len(val))
		for k := range val {
			n, err := strconv.Atoi(k)
			if err != nil || n < 0 {
				return nil, false
			}
			keys = append(keys, indexed{n: n, key: k})
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].n < keys[j].n })
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, val[k.key])
		}
		return out, true
	default:
		return nil, false
	}
}

// records оставляет только элементы-объекты
func records(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}
