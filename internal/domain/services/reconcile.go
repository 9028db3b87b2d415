package services

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/catalog"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceDeviation - цена поставщика не записана, потому что текущая цена
// продажи нарушила бы минимальную наценку при новой себестоимости
type PriceDeviation struct {
	VariantID  string          `json:"variant_id,omitempty"`
	RemoteCost decimal.Decimal `json:"remote_cost"`
	KeptCost   decimal.Decimal `json:"kept_cost"`
	Selling    decimal.Decimal `json:"selling"`
	MinSelling decimal.Decimal `json:"min_selling"`
}

// reconcileInput - состояние до записи: локальный товар (nil, если еще не привязан)
// и карточка поставщика
type reconcileInput struct {
	existing *models.Product
	detail   models.RemoteProductDetail
	raw      json.RawMessage
	opts     ImportOptions
	now      time.Time
}

type reconcileOutcome struct {
	product    *models.Product
	created    bool
	skipped    bool
	changed    []string
	deviations []PriceDeviation
	marginLog  []models.MarginLogEntry
}

// reconcile применяет карточку поставщика к локальному товару.
// Чистая функция: не ходит ни в сеть, ни в хранилище.
func reconcile(in reconcileInput, pricing *policy.PricingValidator) reconcileOutcome {
	out := reconcileOutcome{created: in.existing == nil}

	var p *models.Product
	if out.created {
		id := in.detail.ExternalID
		p = &models.Product{
			ID:          uuid.New().String(),
			ExternalID:  &id,
			Status:      models.StatusInactive,
			SyncEnabled: in.opts.DefaultSyncEnabled,
			Images:      []string{},
			Variants:    []models.Variant{},
			CreatedAt:   in.now,
		}
	} else {
		p = cloneProduct(in.existing)
		if in.opts.RespectSyncFlag && !p.SyncEnabled && !in.opts.Force {
			out.skipped = true
			out.product = p
			return out
		}
	}

	may := func(group models.FieldGroup) bool {
		if out.created {
			return true
		}
		return mayWrite(p, group, in.opts)
	}

	changes := newFieldSet()
	d := in.detail

	if may(models.FieldDescription) {
		if d.Name != catalog.DefaultName || p.Name == "" {
			if p.Name != d.Name {
				p.Name = d.Name
				changes.add(models.ChangedName)
			}
		}
		if d.Description != "" && p.Description != d.Description {
			p.Description = d.Description
			changes.add(models.ChangedDescription)
		}
	}

	if may(models.FieldUnlocked) {
		if d.SKU != nil && p.SKU != *d.SKU {
			p.SKU = *d.SKU
			changes.add(models.ChangedSKU)
		}
		if d.CategoryName != "" && p.CategoryName != d.CategoryName {
			p.CategoryName = d.CategoryName
			changes.add(models.ChangedCategory)
		}
		if d.Inventory != nil && !equalIntPtr(p.Stock, d.Inventory) {
			stock := *d.Inventory
			p.Stock = &stock
			changes.add(models.ChangedStock)
		}
	}

	if may(models.FieldPrice) && d.Price != nil {
		out.applyPrice(p, *d.Price, pricing, in.opts.Actor, in.now, changes)
	}

	if may(models.FieldImages) {
		images := d.Images
		if len(images) == 0 && d.ImageURL != "" {
			images = []string{d.ImageURL}
		}
		if len(images) > 0 && !slices.Equal(p.Images, images) {
			p.Images = slices.Clone(images)
			changes.add(models.ChangedImages)
		}
	}

	if may(models.FieldVariants) && len(d.Variants) > 0 {
		variants := out.mergeVariants(p, d.Variants, may(models.FieldPrice), pricing, in.opts.Actor, in.now)
		if !equalVariants(p.Variants, variants) {
			p.Variants = variants
			changes.add(models.ChangedVariants)
		}
	}

	p.LastChangedFields = changes.list()
	p.LastRawPayload = in.raw
	synced := in.now
	p.LastSyncedAt = &synced
	p.UpdatedAt = in.now

	out.product = p
	out.changed = p.LastChangedFields
	return out
}

// applyPrice записывает цену поставщика как себестоимость.
// При первой привязке (или пустой цене продажи) цена продажи выводится
// из минимальной наценки. Иначе цена продажи не меняется, а себестоимость
// записывается, только если текущая цена продажи остается допустимой.
func (out *reconcileOutcome) applyPrice(
	p *models.Product,
	remoteCost decimal.Decimal,
	pricing *policy.PricingValidator,
	actor models.Actor,
	now time.Time,
	changes *fieldSet,
) {
	if p.SellingPrice.IsZero() {
		oldSelling := p.SellingPrice
		newSelling := pricing.MinSellingPrice(remoteCost, p.CategoryName)

		if !p.CostPrice.Equal(remoteCost) {
			p.CostPrice = remoteCost
			changes.add(models.ChangedCostPrice)
		}
		if !newSelling.Equal(oldSelling) {
			p.SellingPrice = newSelling
			changes.add(models.ChangedPrice)

			entry := models.MarginLogEntry{
				ID:        uuid.New().String(),
				ProductID: p.ID,
				CreatedAt: now,
				Kind:      models.MarginUpdated,
				Actor:     actor,
				NewPrice:  &newSelling,
				Note:      "selling price derived from supplier cost",
			}
			if !out.created {
				entry.OldPrice = &oldSelling
			}
			out.marginLog = append(out.marginLog, entry)
		}
		return
	}

	if p.CostPrice.Equal(remoteCost) {
		return
	}

	if err := pricing.ValidatePrice(remoteCost, p.SellingPrice, p.CategoryName); err != nil {
		out.deviations = append(out.deviations, PriceDeviation{
			RemoteCost: remoteCost,
			KeptCost:   p.CostPrice,
			Selling:    p.SellingPrice,
			MinSelling: pricing.MinSellingPrice(remoteCost, p.CategoryName),
		})
		return
	}

	p.CostPrice = remoteCost
	changes.add(models.ChangedCostPrice)
}

// mergeVariants сопоставляет варианты по внешнему идентификатору.
// Список поставщика авторитетен: отсутствующие у него варианты удаляются.
// При заблокированной цене новые варианты создаются без цен.
func (out *reconcileOutcome) mergeVariants(
	p *models.Product,
	remote []models.RemoteVariant,
	writePrice bool,
	pricing *policy.PricingValidator,
	actor models.Actor,
	now time.Time,
) []models.Variant {
	byExternal := make(map[string]models.Variant, len(p.Variants))
	for _, v := range p.Variants {
		byExternal[v.ExternalVariantID] = v
	}

	merged := make([]models.Variant, 0, len(remote))
	for _, rv := range remote {
		v, known := byExternal[rv.ExternalVariantID]
		if !known {
			v = models.Variant{
				ID:                uuid.New().String(),
				ExternalVariantID: rv.ExternalVariantID,
			}
		}
		if rv.SKU != "" {
			v.SKU = rv.SKU
		}
		if rv.Name != "" {
			v.Name = rv.Name
		}
		if rv.ImageURL != "" {
			v.ImageURL = rv.ImageURL
		}
		if rv.Inventory != nil {
			stock := *rv.Inventory
			v.Stock = &stock
		}

		if rv.Price != nil && writePrice {
			cost := *rv.Price
			switch {
			case v.SellingPrice.IsZero():
				v.CostPrice = cost
				v.SellingPrice = pricing.MinSellingPrice(cost, p.CategoryName)
				variantID, selling := v.ID, v.SellingPrice
				out.marginLog = append(out.marginLog, models.MarginLogEntry{
					ID:        uuid.New().String(),
					ProductID: p.ID,
					VariantID: &variantID,
					CreatedAt: now,
					Kind:      models.VariantMarginUpdated,
					Actor:     actor,
					NewPrice:  &selling,
					Note:      "selling price derived from supplier cost",
				})
			case v.CostPrice.Equal(cost):
			case pricing.ValidatePrice(cost, v.SellingPrice, p.CategoryName) != nil:
				out.deviations = append(out.deviations, PriceDeviation{
					VariantID:  v.ID,
					RemoteCost: cost,
					KeptCost:   v.CostPrice,
					Selling:    v.SellingPrice,
					MinSelling: pricing.MinSellingPrice(cost, p.CategoryName),
				})
			default:
				v.CostPrice = cost
			}
		}

		merged = append(merged, v)
	}

	return merged
}

// fieldSet - упорядоченное множество имен полей
type fieldSet struct {
	seen  map[string]struct{}
	order []string
}

func newFieldSet() *fieldSet {
	return &fieldSet{seen: make(map[string]struct{})}
}

func (s *fieldSet) add(field string) {
	if _, ok := s.seen[field]; ok {
		return
	}
	s.seen[field] = struct{}{}
	s.order = append(s.order, field)
}

func (s *fieldSet) list() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func cloneProduct(p *models.Product) *models.Product {
	c := *p
	c.Images = slices.Clone(p.Images)
	c.Variants = make([]models.Variant, len(p.Variants))
	for i, v := range p.Variants {
		c.Variants[i] = v
		if v.Stock != nil {
			s := *v.Stock
			c.Variants[i].Stock = &s
		}
	}
	c.LastChangedFields = slices.Clone(p.LastChangedFields)
	if p.Stock != nil {
		s := *p.Stock
		c.Stock = &s
	}
	return &c
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalVariants(a, b []models.Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID ||
			x.ExternalVariantID != y.ExternalVariantID ||
			x.SKU != y.SKU ||
			x.Name != y.Name ||
			x.ImageURL != y.ImageURL ||
			!x.CostPrice.Equal(y.CostPrice) ||
			!x.SellingPrice.Equal(y.SellingPrice) ||
			!equalIntPtr(x.Stock, y.Stock) {
			return false
		}
	}
	return true
}
