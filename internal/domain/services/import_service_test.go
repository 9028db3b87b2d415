package services

import (
	"context"
	"errors"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importFixture struct {
	remote    *fakeRemote
	repo      *fakeRepo
	tx        *passTx
	publisher *fakePublisher
	summary   *fakeInvalidator
	metrics   *fakeMetrics
	service   *ImportService
}

func newImportFixture() *importFixture {
	f := &importFixture{
		remote:    newFakeRemote(),
		repo:      newFakeRepo(),
		tx:        &passTx{},
		publisher: &fakePublisher{},
		summary:   &fakeInvalidator{},
		metrics:   &fakeMetrics{},
	}
	f.service = NewImportService(f.remote, f.repo, f.tx, testPricing(10), nopLogger(),
		WithEventPublisher(f.publisher, "catalog.events"),
		WithSummaryInvalidator(f.summary),
		WithMetrics(f.metrics),
		WithClock(fixedClock),
		WithReviewPages(3),
	)
	return f
}

const lampDetail = `{
	"pid":"CJ-1",
	"productNameEn":"Desk Lamp",
	"productSku":"CJ-LAMP",
	"categoryName":"Lighting",
	"descriptionEn":"Remote description",
	"sellPrice":"12.00",
	"warehouseInventoryNum":40,
	"productImage":"[\"https://img/1.jpg\",\"https://img/2.jpg\"]",
	"variants":[{"vid":"V1","variantSku":"CJ-LAMP-W","variantNameEn":"White","variantSellPrice":"12.00","inventoryNum":15}]
}`

func TestImportByExternalID_FirstLink(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	opts := DefaultImportOptions()
	opts.DefaultSyncEnabled = false

	// Act
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", opts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	assert.True(t, res.Created)

	p := res.Product
	require.NotNil(t, p.ExternalID)
	assert.Equal(t, "CJ-1", *p.ExternalID)
	assert.False(t, p.SyncEnabled)
	assert.Equal(t, models.StatusInactive, p.Status)
	assert.Equal(t, "Desk Lamp", p.Name)
	assert.Equal(t, "CJ-LAMP", p.SKU)
	assert.Equal(t, "12", p.CostPrice.String())
	assert.Equal(t, "13.2", p.SellingPrice.String())
	assert.Equal(t, 40, *p.Stock)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, p.Images)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "13.2", p.Variants[0].SellingPrice.String())
	require.NotNil(t, p.LastSyncedAt)
	assert.Equal(t, fixedNow, *p.LastSyncedAt)
	assert.NotEmpty(t, p.LastRawPayload)
	assert.Equal(t, []string{
		models.ChangedName, models.ChangedDescription, models.ChangedSKU, models.ChangedCategory,
		models.ChangedStock, models.ChangedCostPrice, models.ChangedPrice, models.ChangedImages, models.ChangedVariants,
	}, p.LastChangedFields)

	assert.Equal(t, []models.MarginEventKind{models.MarginUpdated, models.VariantMarginUpdated}, f.repo.marginKinds(p.ID))
	assert.Equal(t, []string{"product_synced"}, f.publisher.eventTypes())
	assert.Equal(t, "CJ-1", f.publisher.messages[0].Key)
	assert.Equal(t, 1, f.summary.calls)
	assert.Equal(t, 1, f.tx.calls)
	assert.NotContains(t, f.remote.calls, "variants:CJ-1")
}

func TestImportByExternalID_PriceLockKeepsSellingPrice(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	existing := linkedProduct("p-1", "CJ-1")
	existing.Locks.Price = true
	f.repo.put(existing)

	// Act
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

	// Assert
	require.NoError(t, err)
	p := res.Product
	assert.Equal(t, "20", p.SellingPrice.String())
	assert.Equal(t, "10", p.CostPrice.String())
	assert.NotContains(t, p.LastChangedFields, models.ChangedPrice)
	assert.NotContains(t, p.LastChangedFields, models.ChangedCostPrice)
	assert.Contains(t, p.LastChangedFields, models.ChangedName)
	assert.Contains(t, p.LastChangedFields, models.ChangedImages)
	// новый вариант создается без цены, пока цена заблокирована
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "V1", p.Variants[0].ExternalVariantID)
	assert.True(t, p.Variants[0].CostPrice.IsZero())
	assert.True(t, p.Variants[0].SellingPrice.IsZero())
	assert.Empty(t, f.repo.marginKinds("p-1"))

	stored, _ := f.repo.GetByID(context.Background(), "p-1")
	assert.Equal(t, "20", stored.SellingPrice.String())
}

func TestImportByExternalID_LocksPerGroup(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	existing := linkedProduct("p-1", "CJ-1")
	existing.Locks = models.LockFlags{Description: true, Images: true, Variants: true}
	f.repo.put(existing)

	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

	require.NoError(t, err)
	p := res.Product
	assert.Equal(t, "Local name", p.Name)
	assert.Equal(t, "Local description", p.Description)
	assert.Equal(t, []string{"https://img/local.jpg"}, p.Images)
	assert.Empty(t, p.Variants)
	assert.Equal(t, "12", p.CostPrice.String())
	assert.Equal(t, []string{models.ChangedSKU, models.ChangedCategory, models.ChangedStock, models.ChangedCostPrice}, p.LastChangedFields)
}

func TestImportByExternalID_RespectLocksFalse(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	existing := linkedProduct("p-1", "CJ-1")
	existing.Locks = models.LockFlags{Price: true, Description: true}
	f.repo.put(existing)

	opts := DefaultImportOptions()
	opts.RespectLocks = false
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", opts)

	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", res.Product.Name)
	assert.Equal(t, "12", res.Product.CostPrice.String())
	assert.Equal(t, "20", res.Product.SellingPrice.String())
}

func TestImportByExternalID_SyncDisabled(t *testing.T) {
	testCases := []struct {
		name            string
		opts            func(o *ImportOptions)
		expectedOutcome string
		expectSave      bool
		expectedName    string
		expectedCost    string
	}{
		{"skipped when flag respected", func(o *ImportOptions) {}, OutcomeSkipped, false, "Local name", "10"},
		{"force bypasses flag", func(o *ImportOptions) { o.Force = true }, OutcomeImported, true, "Desk Lamp", "12"},
		{"flag not respected keeps fields", func(o *ImportOptions) { o.RespectSyncFlag = false }, OutcomeImported, true, "Local name", "10"},
		{"locks ignored keeps fields", func(o *ImportOptions) {
			o.RespectSyncFlag = false
			o.RespectLocks = false
		}, OutcomeImported, true, "Local name", "10"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			f := newImportFixture()
			f.remote.details["CJ-1"] = lampDetail
			existing := linkedProduct("p-1", "CJ-1")
			existing.SyncEnabled = false
			f.repo.put(existing)
			opts := DefaultImportOptions()
			tc.opts(&opts)

			// Act
			res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", opts)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tc.expectedOutcome, res.Outcome)
			assert.Equal(t, tc.expectSave, f.repo.saves > 0)

			stored, _ := f.repo.GetByID(context.Background(), "p-1")
			assert.Equal(t, tc.expectedName, stored.Name)
			assert.Equal(t, tc.expectedCost, stored.CostPrice.String())
			if tc.expectedName == "Local name" {
				assert.Equal(t, "Local description", stored.Description)
				assert.Equal(t, []string{"https://img/local.jpg"}, stored.Images)
				assert.Empty(t, stored.Variants)
				assert.Empty(t, res.ChangedFields)
			}
		})
	}
}

func TestImportByExternalID_ExternalIDMismatch(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["CJ-1"] = `{"pid":"CJ-9","productNameEn":"Other","sellPrice":"3"}`
	f.repo.put(linkedProduct("p-1", "CJ-1"))

	// Act
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrExternalIDMismatch)
	assert.Nil(t, res)
	assert.Zero(t, f.repo.saves)
	stored, _ := f.repo.GetByID(context.Background(), "p-1")
	assert.Equal(t, "Local name", stored.Name)
}

func TestImportByExternalID_ConcurrentFirstLink(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	f.repo.onSave = func(r *fakeRepo) {
		// другой импорт привязал тот же товар между чтением и записью
		r.products["p-winner"] = linkedProduct("p-winner", "CJ-1")
	}

	// Act
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	assert.False(t, res.Created)
	assert.Equal(t, "p-winner", res.Product.ID)
	assert.Len(t, f.repo.products, 1)
	assert.Equal(t, 2, f.tx.calls)

	stored, _ := f.repo.GetByID(context.Background(), "p-winner")
	assert.Equal(t, "Desk Lamp", stored.Name)
	assert.Equal(t, "12", stored.CostPrice.String())
}

func TestImportByExternalID_PriceDeviationKeepsCost(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["CJ-1"] = `{"pid":"CJ-1","productNameEn":"Desk Lamp","sellPrice":"10.5"}`
	existing := linkedProduct("p-1", "CJ-1")
	existing.SellingPrice = dec("11")
	f.repo.put(existing)

	// Act
	res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, res.Outcome)
	require.Len(t, res.Deviations, 1)
	assert.Equal(t, "10.5", res.Deviations[0].RemoteCost.String())
	assert.Equal(t, "11.55", res.Deviations[0].MinSelling.String())
	assert.Equal(t, "10", res.Product.CostPrice.String())
	assert.Equal(t, "11", res.Product.SellingPrice.String())
	assert.NotContains(t, res.Product.LastChangedFields, models.ChangedCostPrice)
	assert.Empty(t, f.repo.marginKinds("p-1"))
	assert.Equal(t, 1, f.metrics.deviations)
}

func TestImportByExternalID_RemoteError(t *testing.T) {
	apiErr := &utils.RemoteAPIError{Status: 429, ProviderCode: 1600200, Message: "Too many requests"}

	t.Run("returned when throwing", func(t *testing.T) {
		f := newImportFixture()
		f.remote.errs["detail:CJ-1"] = apiErr

		res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())

		assert.Nil(t, res)
		var got *utils.RemoteAPIError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, 429, got.Status)
		assert.Equal(t, []string{"get_detail"}, f.metrics.remoteErrs)
		assert.Zero(t, f.tx.calls)
	})

	t.Run("recorded when not throwing", func(t *testing.T) {
		f := newImportFixture()
		f.remote.errs["detail:CJ-1"] = apiErr
		opts := DefaultImportOptions()
		opts.ThrowOnFailure = false

		res, err := f.service.ImportByExternalID(context.Background(), "CJ-1", opts)

		require.NoError(t, err)
		assert.Equal(t, OutcomeError, res.Outcome)
		assert.ErrorIs(t, res.Err, apiErr)
	})
}

func TestImportByExternalID_EmptyID(t *testing.T) {
	f := newImportFixture()

	_, err := f.service.ImportByExternalID(context.Background(), "  ", DefaultImportOptions())

	assert.ErrorIs(t, err, utils.ErrMissingExternalID)
	assert.Empty(t, f.remote.calls)
}

func TestImportByExternalID_FetchesVariantsSeparately(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-2"] = `{"pid":"CJ-2","productNameEn":"Mug","sellPrice":5}`
	f.remote.variants["CJ-2"] = `{"list":[{"vid":"M1","pid":"CJ-2","variantSellPrice":5},{"vid":"M2","pid":"CJ-2","variantSellPrice":6}]}`

	res, err := f.service.ImportByExternalID(context.Background(), "CJ-2", DefaultImportOptions())

	require.NoError(t, err)
	require.Len(t, res.Product.Variants, 2)
	assert.Equal(t, "M2", res.Product.Variants[1].ExternalVariantID)
	assert.Equal(t, "6.6", res.Product.Variants[1].SellingPrice.String())
	assert.Contains(t, f.remote.calls, "variants:CJ-2")
}

func TestImportByExternalID_ReimportIsIdempotent(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail

	first, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())
	require.NoError(t, err)
	second, err := f.service.ImportByExternalID(context.Background(), "CJ-1", DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Product.ID, second.Product.ID)
	assert.False(t, second.Created)
	assert.Empty(t, second.ChangedFields)
	assert.Len(t, f.repo.products, 1)
}

func TestImportBatch_Isolation(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["A"] = `{"pid":"A","sellPrice":"1"}`
	f.remote.details["C"] = `{"pid":"C","sellPrice":"3"}`
	f.remote.errs["detail:B"] = &utils.RemoteAPIError{Status: 500, Message: "boom"}

	// Act
	res, err := f.service.ImportBatch(context.Background(), []string{"A", "B", "C"}, DefaultImportOptions())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, []string{"A", "C"}, res.ImportedIDs)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "B", res.Failures[0].ExternalID)
	assert.True(t, utils.IsRemoteAPIError(res.Failures[0].Err))
	assert.Equal(t, []string{"detail:A", "variants:A", "detail:B", "detail:C", "variants:C"}, f.remote.calls)
	assert.Contains(t, f.publisher.eventTypes(), "batch_finished")
}

func TestImportBatch_CountsSkipped(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	f.remote.details["CJ-2"] = `{"pid":"CJ-2"}`
	disabled := linkedProduct("p-1", "CJ-1")
	disabled.SyncEnabled = false
	f.repo.put(disabled)

	res, err := f.service.ImportBatch(context.Background(), []string{"CJ-1", "CJ-2"}, DefaultImportOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"CJ-1"}, res.SkippedIDs)
	assert.Equal(t, 1, res.Imported)
}

func TestImportBatch_CancellationBetweenItems(t *testing.T) {
	// Arrange
	f := newImportFixture()
	f.remote.details["A"] = `{"pid":"A"}`
	f.remote.details["B"] = `{"pid":"B"}`
	ctx, cancel := context.WithCancel(context.Background())
	f.remote.onDetail = func(id string) {
		if id == "A" {
			cancel()
		}
	}

	// Act
	res, err := f.service.ImportBatch(ctx, []string{"A", "B"}, DefaultImportOptions())

	// Assert
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Imported)
	assert.NotContains(t, f.remote.calls, "detail:B")
}

func TestSyncMedia(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	f.repo.put(linkedProduct("p-1", "CJ-1"))

	res, err := f.service.SyncMedia(context.Background(), "p-1", DefaultImportOptions())

	require.NoError(t, err)
	assert.Equal(t, []string{models.ChangedImages}, res.ChangedFields)
	stored, _ := f.repo.GetByID(context.Background(), "p-1")
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, stored.Images)
	assert.Equal(t, "Local name", stored.Name)
}

func TestSyncMedia_ImagesLocked(t *testing.T) {
	f := newImportFixture()
	f.remote.details["CJ-1"] = lampDetail
	p := linkedProduct("p-1", "CJ-1")
	p.Locks.Images = true
	f.repo.put(p)

	res, err := f.service.SyncMedia(context.Background(), "p-1", DefaultImportOptions())

	require.NoError(t, err)
	assert.Empty(t, res.ChangedFields)
	assert.Zero(t, f.repo.saves)
}

func TestSyncMedia_NotLinked(t *testing.T) {
	f := newImportFixture()
	local := linkedProduct("p-1", "x")
	local.ExternalID = nil
	f.repo.put(local)

	_, err := f.service.SyncMedia(context.Background(), "p-1", DefaultImportOptions())

	assert.ErrorIs(t, err, utils.ErrProductNotLinked)
}

func TestSyncStock(t *testing.T) {
	// Arrange
	f := newImportFixture()
	p := linkedProduct("p-1", "CJ-1")
	p.Variants = []models.Variant{
		{ID: "v-1", ExternalVariantID: "V1"},
		{ID: "v-2", ExternalVariantID: "V2"},
	}
	f.repo.put(p)
	f.remote.stock["V1"] = `{"list":[{"storageNum":3},{"storageNum":4}]}`
	f.remote.stock["V2"] = `{"list":[{"storageNum":5}]}`

	// Act
	res, err := f.service.SyncStock(context.Background(), "p-1", DefaultImportOptions())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{models.ChangedStock, models.ChangedVariants}, res.ChangedFields)
	stored, _ := f.repo.GetByID(context.Background(), "p-1")
	require.NotNil(t, stored.Stock)
	assert.Equal(t, 12, *stored.Stock)
	assert.Equal(t, 7, *stored.Variants[0].Stock)
	assert.Equal(t, 5, *stored.Variants[1].Stock)
}

func TestSyncReviews(t *testing.T) {
	f := newImportFixture()
	f.repo.put(linkedProduct("p-1", "CJ-1"))
	f.remote.reviews["CJ-1"] = []string{
		`{"totalPages":2,"list":[{"commentId":"r1","score":5,"comment":"ok"},{"commentId":"r2","score":4}]}`,
		`{"totalPages":2,"list":[{"commentId":"r2","score":4},{"commentId":"r3","score":3}]}`,
	}

	res, err := f.service.SyncReviews(context.Background(), "p-1", DefaultImportOptions())

	require.NoError(t, err)
	assert.Equal(t, 3, res.ReviewsSaved)
	assert.Len(t, f.repo.reviews["p-1"], 3)
	assert.Equal(t, "p-1", f.repo.reviews["p-1"]["r1"].ProductID)
	assert.NotContains(t, f.remote.calls, "reviews:CJ-1:3")
}
