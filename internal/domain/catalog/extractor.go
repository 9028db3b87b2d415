package catalog

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/shopspring/decimal"
)

// DefaultName - имя товара, если поставщик не прислал ни одного варианта названия
const DefaultName = "Untitled product"

// Ключи-кандидаты в порядке приоритета
var (
	externalIDKeys  = []string{"pid", "productId", "product_id", "id"}
	nameKeys        = []string{"productNameEn", "productName", "nameEn", "name"}
	skuKeys         = []string{"productSku", "sku"}
	categoryKeys    = []string{"categoryName", "categoryNameEn", "threeCategoryName"}
	priceKeys       = []string{"sellPrice", "productSellPrice"}
	inventoryKeys   = []string{"warehouseInventoryNum", "listingCount", "listedNum"}
	imageKeys       = []string{"productImage", "bigImage", "productImageUrl", "image"}
	descriptionKeys = []string{"descriptionEn", "description", "productDescription"}
	imageSetKeys    = []string{"productImageSet", "productImage", "imageList"}
	warehouseKeys   = []string{"warehouseList", "warehouseInfo", "warehouse", "warehouses"}
	countryKeys     = []string{"countryCode", "country", "warehouseCountryCode", "warehouseCountry"}
	variantListKeys = []string{"variants", "variantList"}

	variantIDKeys        = []string{"vid", "variantId"}
	variantSKUKeys       = []string{"variantSku", "sku"}
	variantNameKeys      = []string{"variantNameEn", "variantName", "variantKey"}
	variantPriceKeys     = []string{"variantSellPrice", "sellPrice"}
	variantInventoryKeys = []string{"inventoryNum", "variantInventory", "variantStock"}
	variantImageKeys     = []string{"variantImage", "image"}

	stockKeys = []string{"totalInventoryNum", "storageNum", "inventoryNum"}
)

// ExternalID возвращает идентификатор товара поставщика или "",
// если запись нельзя однозначно связать с товаром.
func ExternalID(rec map[string]any) string {
	return firstString(rec, externalIDKeys...)
}

// Name возвращает отображаемое имя или DefaultName
func Name(rec map[string]any) string {
	if name := firstString(rec, nameKeys...); name != "" {
		return name
	}
	return DefaultName
}

// SKU возвращает артикул или nil, если он пустой
func SKU(rec map[string]any) *string {
	if sku := firstString(rec, skuKeys...); sku != "" {
		return &sku
	}
	return nil
}

func CategoryName(rec map[string]any) string {
	return firstString(rec, categoryKeys...)
}

// Price возвращает цену поставщика. Отрицательная или нечисловая цена дает nil.
func Price(rec map[string]any) *decimal.Decimal {
	for _, key := range priceKeys {
		if d, ok := toDecimal(rec[key]); ok && !d.IsNegative() {
			return &d
		}
	}
	return nil
}

// Inventory возвращает первый целочисленный остаток по приоритету ключей.
// nil означает "неизвестно" и не равен нулю.
func Inventory(rec map[string]any) *int {
	for _, key := range inventoryKeys {
		if n, ok := toInt(rec[key]); ok && n >= 0 {
			return &n
		}
	}
	return nil
}

// ImageURL возвращает основное изображение
func ImageURL(rec map[string]any) string {
	for _, key := range imageKeys {
		if images := imageList(rec[key]); len(images) > 0 {
			return images[0]
		}
	}
	return ""
}

func Description(rec map[string]any) string {
	return firstString(rec, descriptionKeys...)
}

// Images собирает все изображения карточки без повторов, сохраняя порядок.
// productImage бывает строкой с JSON-массивом внутри.
func Images(rec map[string]any) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, key := range imageSetKeys {
		for _, img := range imageList(rec[key]) {
			if _, dup := seen[img]; dup {
				continue
			}
			seen[img] = struct{}{}
			out = append(out, img)
		}
	}
	return out
}

// WarehouseCountries возвращает отсортированный набор кодов стран складов.
// Пустой набор означает, что страну определить нельзя.
func WarehouseCountries(rec map[string]any) []string {
	set := make(map[string]struct{})
	for _, key := range warehouseKeys {
		for _, entry := range entries(rec[key]) {
			if code := countryCode(entry); code != "" {
				set[code] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Variants возвращает варианты карточки. Варианты без vid пропускаются.
func Variants(rec map[string]any) []models.RemoteVariant {
	for _, key := range variantListKeys {
		if list, ok := asList(rec[key]); ok {
			return variantsFrom(records(list))
		}
	}
	return []models.RemoteVariant{}
}

// ExtractRecord собирает каноническую запись каталога
func ExtractRecord(rec map[string]any) (models.RemoteCatalogRecord, error) {
	id := ExternalID(rec)
	if id == "" {
		return models.RemoteCatalogRecord{}, utils.ErrMissingExternalID
	}

	return models.RemoteCatalogRecord{
		ExternalID:         id,
		Name:               Name(rec),
		SKU:                SKU(rec),
		CategoryName:       CategoryName(rec),
		Price:              Price(rec),
		Inventory:          Inventory(rec),
		ImageURL:           ImageURL(rec),
		WarehouseCountries: WarehouseCountries(rec),
		Raw:                rec,
	}, nil
}

// ExtractRecords извлекает записи страницы. Записи без внешнего
// идентификатора отбрасываются и учитываются в skipped.
func ExtractRecords(raw []map[string]any) (out []models.RemoteCatalogRecord, skipped int) {
	out = make([]models.RemoteCatalogRecord, 0, len(raw))
	for _, rec := range raw {
		record, err := ExtractRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, record)
	}
	return out, skipped
}

// ExtractDetail разбирает ответ detail-запроса в карточку товара
func ExtractDetail(payload map[string]any) (models.RemoteProductDetail, error) {
	rec, ok := UnwrapDetail(payload)
	if !ok {
		return models.RemoteProductDetail{}, utils.ErrMissingExternalID
	}

	record, err := ExtractRecord(rec)
	if err != nil {
		return models.RemoteProductDetail{}, err
	}

	images := Images(rec)
	if record.ImageURL == "" && len(images) > 0 {
		record.ImageURL = images[0]
	}

	return models.RemoteProductDetail{
		RemoteCatalogRecord: record,
		Description:         Description(rec),
		Images:              images,
		Variants:            Variants(rec),
	}, nil
}

// ExtractVariants разбирает ответ запроса вариантов.
// Ответ может быть списком вариантов или карточкой с вложенным списком.
func ExtractVariants(payload map[string]any) []models.RemoteVariant {
	if payload == nil {
		return []models.RemoteVariant{}
	}
	if detail, ok := UnwrapDetail(payload); ok {
		if variants := Variants(detail); len(variants) > 0 {
			return variants
		}
	}
	if variants := Variants(payload); len(variants) > 0 {
		return variants
	}
	_, list := Normalize(payload)
	return variantsFrom(list)
}

// ExtractStock суммирует остатки по складам из ответа запроса остатков.
// nil, если ни одна запись не содержит числового остатка.
func ExtractStock(payload map[string]any) *int {
	if payload == nil {
		return nil
	}

	_, list := Normalize(payload)
	if len(list) == 0 {
		list = []map[string]any{payload}
	}

	var (
		total int
		found bool
	)
	for _, rec := range list {
		if n := firstInt(rec, stockKeys...); n != nil && *n >= 0 {
			total += *n
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}

// ExtractReviews разбирает страницу отзывов. ProductID заполняет вызывающий.
func ExtractReviews(payload map[string]any) []models.Review {
	_, list := Normalize(payload)
	out := make([]models.Review, 0, len(list))
	for _, rec := range list {
		id := firstString(rec, "commentId", "reviewId", "id")
		if id == "" {
			continue
		}
		rating, _ := toInt(rec["score"])
		if rating == 0 {
			rating, _ = toInt(rec["rating"])
		}
		out = append(out, models.Review{
			ExternalID: id,
			Author:     firstString(rec, "commentUser", "author", "userName"),
			Rating:     rating,
			Body:       firstString(rec, "comment", "content", "body"),
			Images:     imageList(rec["commentUrls"]),
			CreatedAt:  parseTime(firstString(rec, "commentDate", "createTime", "createdAt")),
		})
	}
	return out
}

func variantsFrom(list []map[string]any) []models.RemoteVariant {
	out := make([]models.RemoteVariant, 0, len(list))
	for _, rec := range list {
		vid := firstString(rec, variantIDKeys...)
		if vid == "" {
			continue
		}
		v := models.RemoteVariant{
			ExternalVariantID: vid,
			SKU:               firstString(rec, variantSKUKeys...),
			Name:              firstString(rec, variantNameKeys...),
			Price:             firstDecimal(rec, variantPriceKeys...),
			Inventory:         firstInt(rec, variantInventoryKeys...),
		}
		if images := imageList(firstNonNil(rec, variantImageKeys...)); len(images) > 0 {
			v.ImageURL = images[0]
		}
		out = append(out, v)
	}
	return out
}

// imageList принимает URL, список URL или строку с JSON-массивом URL
func imageList(v any) []string {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil
			}
			return compact(decoded)
		}
		return []string{s}
	default:
		list, ok := asList(v)
		if !ok {
			return nil
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return compact(out)
	}
}

// entries принимает список объектов или одиночный объект
func entries(v any) []map[string]any {
	if list, ok := asList(v); ok {
		return records(list)
	}
	if m, ok := v.(map[string]any); ok {
		return []map[string]any{m}
	}
	return nil
}

func countryCode(entry map[string]any) string {
	for _, key := range countryKeys {
		code := strings.ToUpper(toString(entry[key]))
		if isCountryCode(code) {
			return code
		}
	}
	return ""
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func firstNonNil(rec map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := rec[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var reviewTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) time.Time {
	for _, layout := range reviewTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
