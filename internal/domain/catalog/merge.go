package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/utils"
)

// ParsePage нормализует ответ листинга в страницу каталога.
// requested - запрошенная позиция; мета из ответа имеет приоритет,
// если поставщик ее прислал. Возвращает число отброшенных записей без идентификатора.
func ParsePage(payload map[string]any, requested *utils.Pagination) (models.CatalogPage, int) {
	meta, raw := Normalize(payload)
	recs, skipped := ExtractRecords(raw)

	top := PageMeta(payload)
	pick := func(fromMeta, fromTop *int) *int {
		if fromMeta != nil {
			return fromMeta
		}
		return fromTop
	}

	page := models.CatalogPage{
		PageNum:      requested.Page,
		PageSize:     requested.PageSize,
		Total:        pick(meta.Total(), top.Total()),
		TotalPages:   pick(meta.TotalPages(), top.TotalPages()),
		FetchedCount: len(raw),
		Records:      recs,
	}

	if n := pick(meta.PageNum(), top.PageNum()); n != nil && *n >= 1 {
		page.PageNum = *n
	}
	if n := pick(meta.PageSize(), top.PageSize()); n != nil && *n > 0 {
		page.PageSize = utils.ClampPageSize(*n, utils.DefaultMinPageSize, utils.DefaultMaxPageSize)
	}
	if page.PageNum < 1 {
		page.PageNum = 1
	}

	return page, skipped
}

// Merge объединяет рабочий набор со страницей.
// Без append страница заменяет набор целиком. С append записи
// дедуплицируются по внешнему идентификатору (или хэшу содержимого),
// побеждает первое вхождение.
func Merge(existing models.WorkingSet, page models.CatalogPage, appendPage bool) models.WorkingSet {
	var combined []models.RemoteCatalogRecord
	if appendPage {
		combined = make([]models.RemoteCatalogRecord, 0, len(existing.Records)+len(page.Records))
		combined = append(combined, existing.Records...)
	}
	combined = append(combined, page.Records...)

	seen := make(map[string]struct{}, len(combined))
	deduped := make([]models.RemoteCatalogRecord, 0, len(combined))
	for _, rec := range combined {
		key := RecordKey(rec)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, rec)
	}

	p := utils.NewPagination(page.PageNum, page.PageSize, utils.DefaultMinPageSize, utils.DefaultMaxPageSize)
	if page.PageSize > 0 {
		p.PageSize = page.PageSize
	}
	p.SetTotals(page.Total, page.TotalPages, page.FetchedCount)

	return models.WorkingSet{
		Records:    deduped,
		PageNum:    p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasMore:    p.HasNext,
	}
}

// RecordKey - ключ дедупликации записи
func RecordKey(rec models.RemoteCatalogRecord) string {
	if rec.ExternalID != "" {
		return "id:" + rec.ExternalID
	}
	return "hash:" + ContentHash(rec)
}

// ContentHash - стабильный хэш содержимого записи.
// encoding/json сортирует ключи map, поэтому одинаковые ответы дают одинаковый хэш.
func ContentHash(rec models.RemoteCatalogRecord) string {
	var (
		data []byte
		err  error
	)
	if rec.Raw != nil {
		data, err = json.Marshal(rec.Raw)
	} else {
		data, err = json.Marshal(rec)
	}
	if err != nil {
		data = []byte(rec.Name)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
