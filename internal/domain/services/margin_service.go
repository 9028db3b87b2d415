package services

import (
	"context"
	"fmt"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/tx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarginResult - итог изменения цены
type MarginResult struct {
	Product *models.Product         `json:"product"`
	Entries []models.MarginLogEntry `json:"entries"`
}

// MarginService - явные операции оператора над ценой продажи
type MarginService struct {
	repository  ProductRepository
	txManager   tx.TxManager
	pricing     *policy.PricingValidator
	logger      interfaces.LoggerPort
	publisher   interfaces.MessagingPort
	eventsTopic string
	now         Clock
}

// NewMarginService создает новый экземпляр MarginService.
// publisher может быть nil.
func NewMarginService(
	repository ProductRepository,
	txManager tx.TxManager,
	pricing *policy.PricingValidator,
	logger interfaces.LoggerPort,
	publisher interfaces.MessagingPort,
	eventsTopic string,
) *MarginService {
	return &MarginService{
		repository:  repository,
		txManager:   txManager,
		pricing:     pricing,
		logger:      logger,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		now:         utcNow,
	}
}

// SetClock подменяет источник времени
func (s *MarginService) SetClock(now Clock) {
	if now != nil {
		s.now = now
	}
}

// SetMarginPercent пересчитывает цену продажи из себестоимости:
// selling = cost * (1 + percent/100), без округления.
//
// Пишет margin_updated для товара и variant_margin_updated для каждого
// измененного варианта. Неактивный товар активируется с отдельной записью activated.
// Наценка ниже минимальной отвергается с *utils.MarginViolation.
func (s *MarginService) SetMarginPercent(
	ctx context.Context,
	productID string,
	percent decimal.Decimal,
	applyToVariants bool,
	actor models.Actor,
) (*MarginResult, error) {
	if percent.IsNegative() {
		return nil, utils.ErrInvalidPercent
	}

	result := &MarginResult{}
	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		p, err := s.repository.GetByID(txCtx, productID)
		if err != nil {
			return err
		}
		if !p.CostPrice.IsPositive() {
			return utils.ErrNoCostPrice
		}
		if err := s.pricing.ValidatePercent(p.CostPrice, percent, p.CategoryName); err != nil {
			return err
		}

		now := s.now()
		note := fmt.Sprintf("margin set to %s%%", percent.String())
		entries := make([]models.MarginLogEntry, 0, 2+len(p.Variants))

		oldSelling := p.SellingPrice
		newSelling := policy.PriceForPercent(p.CostPrice, percent)
		if !newSelling.Equal(oldSelling) {
			p.SellingPrice = newSelling
			entries = append(entries, models.MarginLogEntry{
				ID:        uuid.New().String(),
				ProductID: p.ID,
				CreatedAt: now,
				Kind:      models.MarginUpdated,
				Actor:     actor,
				OldPrice:  &oldSelling,
				NewPrice:  &newSelling,
				Note:      note,
			})
		}

		if applyToVariants {
			for i := range p.Variants {
				v := &p.Variants[i]
				if !v.CostPrice.IsPositive() {
					continue
				}
				oldVariant := v.SellingPrice
				newVariant := policy.PriceForPercent(v.CostPrice, percent)
				if newVariant.Equal(oldVariant) {
					continue
				}
				v.SellingPrice = newVariant
				variantID := v.ID
				entries = append(entries, models.MarginLogEntry{
					ID:        uuid.New().String(),
					ProductID: p.ID,
					VariantID: &variantID,
					CreatedAt: now,
					Kind:      models.VariantMarginUpdated,
					Actor:     actor,
					OldPrice:  &oldVariant,
					NewPrice:  &newVariant,
					Note:      note,
				})
			}
		}

		if p.Status != models.StatusActive {
			entries = append(entries, models.MarginLogEntry{
				ID:        uuid.New().String(),
				ProductID: p.ID,
				CreatedAt: now,
				Kind:      models.Activated,
				Actor:     actor,
				OldStatus: p.Status,
				NewStatus: models.StatusActive,
				Note:      note,
			})
			p.Status = models.StatusActive
		}

		if len(entries) == 0 {
			result.Product = p
			result.Entries = entries
			return nil
		}

		p.UpdatedAt = now
		if err := s.repository.SaveProduct(txCtx, p); err != nil {
			return fmt.Errorf("failed to save product: %w", err)
		}
		if err := s.repository.AppendMarginLog(txCtx, entries...); err != nil {
			return fmt.Errorf("failed to append margin log: %w", err)
		}

		result.Product = p
		result.Entries = entries
		return nil
	})
	if err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось установить наценку",
			interfaces.LogField{Key: "product_id", Value: productID},
			interfaces.LogField{Key: "percent", Value: percent.String()},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Наценка установлена",
		interfaces.LogField{Key: "product_id", Value: productID},
		interfaces.LogField{Key: "percent", Value: percent.String()},
		interfaces.LogField{Key: "entries", Value: len(result.Entries)},
	)
	s.publish(ctx, result)

	return result, nil
}

// UpdateSellingPrice - явное изменение цены продажи оператором.
// Цена ниже минимальной отвергается с *utils.MarginViolation и не записывается.
// variantID == "" меняет цену самого товара.
func (s *MarginService) UpdateSellingPrice(
	ctx context.Context,
	productID string,
	variantID string,
	selling decimal.Decimal,
	actor models.Actor,
) (*MarginResult, error) {
	if selling.IsNegative() {
		return nil, utils.ErrInvalidPrice
	}

	result := &MarginResult{}
	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		p, err := s.repository.GetByID(txCtx, productID)
		if err != nil {
			return err
		}

		cost, old := p.CostPrice, p.SellingPrice
		var variant *models.Variant
		if variantID != "" {
			for i := range p.Variants {
				if p.Variants[i].ID == variantID {
					variant = &p.Variants[i]
					break
				}
			}
			if variant == nil {
				return utils.ErrVariantNotFound
			}
			cost, old = variant.CostPrice, variant.SellingPrice
		}

		if err := s.pricing.ValidatePrice(cost, selling, p.CategoryName); err != nil {
			return err
		}

		result.Product = p
		if selling.Equal(old) {
			return nil
		}

		entry := models.MarginLogEntry{
			ID:        uuid.New().String(),
			ProductID: p.ID,
			CreatedAt: s.now(),
			Kind:      models.MarginUpdated,
			Actor:     actor,
			OldPrice:  &old,
			NewPrice:  &selling,
			Note:      "manual price edit",
		}
		if variant != nil {
			variant.SellingPrice = selling
			entry.Kind = models.VariantMarginUpdated
			entry.VariantID = &variantID
		} else {
			p.SellingPrice = selling
		}
		p.UpdatedAt = entry.CreatedAt

		if err := s.repository.SaveProduct(txCtx, p); err != nil {
			return fmt.Errorf("failed to save product: %w", err)
		}
		if err := s.repository.AppendMarginLog(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append margin log: %w", err)
		}
		result.Entries = []models.MarginLogEntry{entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, result)
	return result, nil
}

// MarginLog возвращает журнал наценки товара, новые записи первыми
func (s *MarginService) MarginLog(ctx context.Context, productID string, limit int) ([]models.MarginLogEntry, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	return s.repository.ListMarginLog(ctx, productID, limit)
}

func (s *MarginService) publish(ctx context.Context, result *MarginResult) {
	if s.publisher == nil || s.eventsTopic == "" || len(result.Entries) == 0 {
		return
	}

	key := ""
	if result.Product.ExternalID != nil {
		key = *result.Product.ExternalID
	}
	data, err := messaging.SyncEvent{
		Type:       messaging.MarginUpdatedEvent,
		ProductID:  result.Product.ID,
		ExternalID: key,
		OccurredAt: s.now(),
	}.Marshal()
	if err != nil {
		return
	}

	if err := s.publisher.Publish(ctx, s.eventsTopic, key, data); err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось опубликовать событие",
			interfaces.LogField{Key: "event", Value: messaging.MarginUpdatedEvent},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
