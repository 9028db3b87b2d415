package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/catalog"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
)

// SyncMedia обновляет только изображения уже привязанного товара
func (s *ImportService) SyncMedia(ctx context.Context, productID string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{ChangedFields: []string{}}

	product, err := s.loadLinked(ctx, productID)
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}
	result.ExternalID = *product.ExternalID

	if s.syncGated(product, opts) {
		return s.skipped(ctx, result, product, start), nil
	}

	payload, err := s.remote.GetDetail(ctx, result.ExternalID)
	if err != nil {
		s.metrics.IncRemoteError("get_detail")
		return s.fail(ctx, result, opts, start, err)
	}
	detail, err := catalog.ExtractDetail(payload)
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}

	images := detail.Images
	if len(images) == 0 && detail.ImageURL != "" {
		images = []string{detail.ImageURL}
	}

	var saved *models.Product
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		p, err := s.repository.GetByExternalID(txCtx, result.ExternalID)
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}

		changed := []string{}
		if mayWrite(p, models.FieldImages, opts) && len(images) > 0 && !slices.Equal(p.Images, images) {
			p.Images = slices.Clone(images)
			changed = append(changed, models.ChangedImages)
		}
		if mayWrite(p, models.FieldVariants, opts) {
			if variantImagesChanged(p, detail.Variants) {
				changed = append(changed, models.ChangedVariants)
			}
		}

		if len(changed) == 0 {
			saved = p
			return nil
		}

		p.LastChangedFields = changed
		p.UpdatedAt = s.now()
		if err := s.repository.SaveProduct(txCtx, p); err != nil {
			return fmt.Errorf("failed to save product: %w", err)
		}
		result.ChangedFields = changed
		saved = p
		return nil
	})
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}

	return s.narrowDone(ctx, result, saved, start, "Изображения товара синхронизированы"), nil
}

// SyncStock обновляет остатки вариантов и товара.
// Остаток товара - сумма известных остатков вариантов.
func (s *ImportService) SyncStock(ctx context.Context, productID string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{ChangedFields: []string{}}

	product, err := s.loadLinked(ctx, productID)
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}
	result.ExternalID = *product.ExternalID

	if s.syncGated(product, opts) {
		return s.skipped(ctx, result, product, start), nil
	}

	// Остатки запрашиваются до транзакции, по одному запросу на вариант
	variantStock := make(map[string]*int, len(product.Variants))
	for _, v := range product.Variants {
		if v.ExternalVariantID == "" {
			continue
		}
		payload, err := s.remote.GetStock(ctx, v.ExternalVariantID)
		if err != nil {
			s.metrics.IncRemoteError("get_stock")
			return s.fail(ctx, result, opts, start, err)
		}
		variantStock[v.ExternalVariantID] = catalog.ExtractStock(payload)
	}

	var productStock *int
	if len(variantStock) == 0 {
		payload, err := s.remote.GetStock(ctx, result.ExternalID)
		if err != nil {
			s.metrics.IncRemoteError("get_stock")
			return s.fail(ctx, result, opts, start, err)
		}
		productStock = catalog.ExtractStock(payload)
	}

	var saved *models.Product
	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		p, err := s.repository.GetByExternalID(txCtx, result.ExternalID)
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}
		saved = p

		if !mayWrite(p, models.FieldUnlocked, opts) {
			return nil
		}

		changed := []string{}
		if len(variantStock) > 0 {
			var (
				total int
				known bool
			)
			variantsChanged := false
			for i := range p.Variants {
				stock, ok := variantStock[p.Variants[i].ExternalVariantID]
				if !ok || stock == nil {
					continue
				}
				total += *stock
				known = true
				if !equalIntPtr(p.Variants[i].Stock, stock) {
					n := *stock
					p.Variants[i].Stock = &n
					variantsChanged = true
				}
			}
			if known {
				productStock = &total
			}
			if variantsChanged {
				changed = append(changed, models.ChangedVariants)
			}
		}

		if productStock != nil && !equalIntPtr(p.Stock, productStock) {
			n := *productStock
			p.Stock = &n
			changed = append([]string{models.ChangedStock}, changed...)
		}

		if len(changed) == 0 {
			return nil
		}

		p.LastChangedFields = changed
		p.UpdatedAt = s.now()
		if err := s.repository.SaveProduct(txCtx, p); err != nil {
			return fmt.Errorf("failed to save product: %w", err)
		}
		result.ChangedFields = changed
		return nil
	})
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}

	return s.narrowDone(ctx, result, saved, start, "Остатки товара синхронизированы"), nil
}

// SyncReviews загружает отзывы поставщика. Уже сохраненные отзывы не дублируются.
func (s *ImportService) SyncReviews(ctx context.Context, productID string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{ChangedFields: []string{}}

	product, err := s.loadLinked(ctx, productID)
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}
	result.ExternalID = *product.ExternalID

	if s.syncGated(product, opts) {
		return s.skipped(ctx, result, product, start), nil
	}

	reviews := make([]models.Review, 0)
	for page := 1; page <= s.reviewPages; page++ {
		payload, err := s.remote.GetReviews(ctx, result.ExternalID, page)
		if err != nil {
			s.metrics.IncRemoteError("get_reviews")
			return s.fail(ctx, result, opts, start, err)
		}

		batch := catalog.ExtractReviews(payload)
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			batch[i].ProductID = product.ID
			if batch[i].CreatedAt.IsZero() {
				batch[i].CreatedAt = s.now()
			}
		}
		reviews = append(reviews, batch...)

		if totalPages := catalog.PageMeta(payload).TotalPages(); totalPages != nil && page >= *totalPages {
			break
		}
	}

	err = s.txManager.Do(ctx, func(txCtx context.Context) error {
		saved, err := s.repository.SaveReviews(txCtx, product.ID, reviews)
		if err != nil {
			return fmt.Errorf("failed to save reviews: %w", err)
		}
		result.ReviewsSaved = saved
		return nil
	})
	if err != nil {
		return s.fail(ctx, result, opts, start, err)
	}

	return s.narrowDone(ctx, result, product, start, "Отзывы товара синхронизированы"), nil
}

// loadLinked загружает товар и проверяет, что он привязан к поставщику
func (s *ImportService) loadLinked(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.repository.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsLinked() {
		return nil, utils.ErrProductNotLinked
	}
	return product, nil
}

func (s *ImportService) syncGated(product *models.Product, opts ImportOptions) bool {
	return opts.RespectSyncFlag && !product.SyncEnabled && !opts.Force
}

// mayWrite - решение политики блокировок для привязанного товара.
// respectSyncFlag влияет только на пропуск записи целиком, здесь всегда
// используется настоящее значение sync_enabled.
func mayWrite(product *models.Product, group models.FieldGroup, opts ImportOptions) bool {
	if !opts.RespectLocks {
		return policy.MayWriteIgnoringLocks(product.SyncEnabled, opts.Force)
	}
	return policy.MayWrite(group, product.Locks, product.SyncEnabled, opts.Force)
}

func (s *ImportService) skipped(ctx context.Context, result *ImportResult, product *models.Product, start time.Time) *ImportResult {
	result.Outcome = OutcomeSkipped
	result.Product = product
	s.metrics.ObserveImport(OutcomeSkipped, time.Since(start))
	s.logger.InfoWithContext(ctx, "Синхронизация товара выключена, операция пропущена",
		interfaces.LogField{Key: "product_id", Value: product.ID},
	)
	return result
}

func (s *ImportService) narrowDone(ctx context.Context, result *ImportResult, product *models.Product, start time.Time, msg string) *ImportResult {
	result.Outcome = OutcomeImported
	result.Product = product
	s.metrics.ObserveImport(OutcomeImported, time.Since(start))

	if len(result.ChangedFields) > 0 {
		s.afterWrite(ctx)
		s.publish(ctx, result.ExternalID, messaging.SyncEvent{
			Type:          messaging.ProductSyncedEvent,
			ProductID:     product.ID,
			ExternalID:    result.ExternalID,
			ChangedFields: result.ChangedFields,
		})
	}

	s.logger.InfoWithContext(ctx, msg,
		interfaces.LogField{Key: "product_id", Value: product.ID},
		interfaces.LogField{Key: "changed_fields", Value: result.ChangedFields},
		interfaces.LogField{Key: "reviews_saved", Value: result.ReviewsSaved},
	)
	return result
}

// variantImagesChanged переносит изображения вариантов из карточки поставщика
func variantImagesChanged(p *models.Product, remote []models.RemoteVariant) bool {
	images := make(map[string]string, len(remote))
	for _, rv := range remote {
		if rv.ImageURL != "" {
			images[rv.ExternalVariantID] = rv.ImageURL
		}
	}

	changed := false
	for i := range p.Variants {
		img, ok := images[p.Variants[i].ExternalVariantID]
		if ok && p.Variants[i].ImageURL != img {
			p.Variants[i].ImageURL = img
			changed = true
		}
	}
	return changed
}
