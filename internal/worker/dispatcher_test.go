package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op   string
	id   string
	opts services.ImportOptions
}

type fakeImporter struct {
	calls []call
	err   error
}

func (f *fakeImporter) record(op, id string, opts services.ImportOptions) (*services.ImportResult, error) {
	f.calls = append(f.calls, call{op: op, id: id, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	return &services.ImportResult{ExternalID: id}, nil
}

func (f *fakeImporter) ImportByExternalID(_ context.Context, externalID string, opts services.ImportOptions) (*services.ImportResult, error) {
	return f.record("import", externalID, opts)
}

func (f *fakeImporter) ImportBatch(_ context.Context, externalIDs []string, opts services.ImportOptions) (*services.BatchResult, error) {
	for _, id := range externalIDs {
		f.calls = append(f.calls, call{op: "batch", id: id, opts: opts})
	}
	return &services.BatchResult{Imported: len(externalIDs)}, f.err
}

func (f *fakeImporter) SyncMedia(_ context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error) {
	return f.record("media", productID, opts)
}

func (f *fakeImporter) SyncStock(_ context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error) {
	return f.record("stock", productID, opts)
}

func (f *fakeImporter) SyncReviews(_ context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error) {
	return f.record("reviews", productID, opts)
}

type fakeMargins struct {
	productID string
	percent   decimal.Decimal
	variants  bool
	actor     models.Actor
}

func (f *fakeMargins) SetMarginPercent(_ context.Context, productID string, percent decimal.Decimal, applyToVariants bool, actor models.Actor) (*services.MarginResult, error) {
	f.productID, f.percent, f.variants, f.actor = productID, percent, applyToVariants, actor
	return &services.MarginResult{}, nil
}

type observed struct {
	statuses []string
}

func (o *observed) observe(_ string, status string, _ time.Duration) {
	o.statuses = append(o.statuses, status)
}

func newDispatcher() (*Dispatcher, *fakeImporter, *fakeMargins, *observed) {
	importer := &fakeImporter{}
	margins := &fakeMargins{}
	obs := &observed{}
	return NewDispatcher(importer, margins, services.DefaultImportOptions(), logger.NewNop(), obs.observe), importer, margins, obs
}

func message(body string) *interfaces.Message {
	return &interfaces.Message{ID: "m-1", Topic: "catalog.jobs", Value: []byte(body)}
}

func TestDispatcher_Routes(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		expectedOp []string
	}{
		{"import product", `{"command":"import_product","external_id":"CJ-1"}`, []string{"import:CJ-1"}},
		{"import batch", `{"command":"import_batch","external_ids":["A","B"]}`, []string{"batch:A", "batch:B"}},
		{"sync media", `{"command":"sync_media","product_id":"p-1"}`, []string{"media:p-1"}},
		{"sync stock", `{"command":"sync_stock","product_id":"p-1"}`, []string{"stock:p-1"}},
		{"sync reviews", `{"command":"sync_reviews","product_id":"p-1"}`, []string{"reviews:p-1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			d, importer, _, obs := newDispatcher()

			// Act
			err := d.Handle(context.Background(), message(tc.body))

			// Assert
			require.NoError(t, err)
			ops := make([]string, 0, len(importer.calls))
			for _, c := range importer.calls {
				ops = append(ops, c.op+":"+c.id)
			}
			assert.Equal(t, tc.expectedOp, ops)
			assert.Equal(t, []string{StatusSuccess}, obs.statuses)
		})
	}
}

func TestDispatcher_ImportOptions(t *testing.T) {
	d, importer, _, _ := newDispatcher()

	err := d.Handle(context.Background(), message(
		`{"command":"import_product","external_id":"CJ-1","force":true,"respect_locks":false,"actor_id":"ops-7"}`))

	require.NoError(t, err)
	require.Len(t, importer.calls, 1)
	opts := importer.calls[0].opts
	assert.True(t, opts.Force)
	assert.False(t, opts.RespectLocks)
	assert.True(t, opts.RespectSyncFlag)
	assert.True(t, opts.ThrowOnFailure)
	assert.Equal(t, models.Actor{Type: models.ActorJob, ID: "ops-7"}, opts.Actor)
}

func TestDispatcher_SetMargin(t *testing.T) {
	d, _, margins, _ := newDispatcher()

	err := d.Handle(context.Background(), message(
		`{"command":"set_margin","product_id":"p-1","percent":"35.5","apply_to_variants":true}`))

	require.NoError(t, err)
	assert.Equal(t, "p-1", margins.productID)
	assert.True(t, decimal.RequireFromString("35.5").Equal(margins.percent))
	assert.True(t, margins.variants)
	assert.Equal(t, models.ActorJob, margins.actor.Type)
}

func TestDispatcher_SetMarginBadPercent(t *testing.T) {
	d, _, _, obs := newDispatcher()

	err := d.Handle(context.Background(), message(`{"command":"set_margin","product_id":"p-1","percent":"abc"}`))

	assert.Error(t, err)
	assert.Equal(t, []string{StatusError}, obs.statuses)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, importer, _, obs := newDispatcher()

	err := d.Handle(context.Background(), message(`{"command":"reindex"}`))

	assert.NoError(t, err)
	assert.Empty(t, importer.calls)
	assert.Equal(t, []string{StatusUnknown}, obs.statuses)
}

func TestDispatcher_Errors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		d, _, _, obs := newDispatcher()

		err := d.Handle(context.Background(), message(`not json`))

		assert.Error(t, err)
		assert.Equal(t, []string{StatusError}, obs.statuses)
	})

	t.Run("service error", func(t *testing.T) {
		d, importer, _, obs := newDispatcher()
		importer.err = errors.New("supplier down")

		err := d.Handle(context.Background(), message(`{"command":"import_product","external_id":"CJ-1"}`))

		assert.EqualError(t, err, "supplier down")
		assert.Equal(t, []string{StatusError}, obs.statuses)
	})
}
