package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/policy"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeRemote - API поставщика в памяти
type fakeRemote struct {
	details   map[string]string
	variants  map[string]string
	stock     map[string]string
	reviews   map[string][]string
	listing   string
	errs      map[string]error
	onDetail  func(id string)
	calls     []string
	listCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		details:  map[string]string{},
		variants: map[string]string{},
		stock:    map[string]string{},
		reviews:  map[string][]string{},
		errs:     map[string]error{},
	}
}

func decodeJSON(raw string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		panic(err)
	}
	return out
}

func (f *fakeRemote) ListCatalog(_ context.Context, params map[string]interface{}) (map[string]any, error) {
	f.listCalls++
	f.calls = append(f.calls, fmt.Sprintf("list:%v", params["pageNum"]))
	if err := f.errs["list"]; err != nil {
		return nil, err
	}
	return decodeJSON(f.listing), nil
}

func (f *fakeRemote) GetDetail(_ context.Context, id string) (map[string]any, error) {
	f.calls = append(f.calls, "detail:"+id)
	if f.onDetail != nil {
		f.onDetail(id)
	}
	if err := f.errs["detail:"+id]; err != nil {
		return nil, err
	}
	raw, ok := f.details[id]
	if !ok {
		return nil, &utils.RemoteAPIError{Status: 404, ProviderCode: 1600100, Message: "product not found"}
	}
	return decodeJSON(raw), nil
}

func (f *fakeRemote) GetVariants(_ context.Context, id string) (map[string]any, error) {
	f.calls = append(f.calls, "variants:"+id)
	if err := f.errs["variants:"+id]; err != nil {
		return nil, err
	}
	raw, ok := f.variants[id]
	if !ok {
		return map[string]any{"list": []any{}}, nil
	}
	return decodeJSON(raw), nil
}

func (f *fakeRemote) GetStock(_ context.Context, vid string) (map[string]any, error) {
	f.calls = append(f.calls, "stock:"+vid)
	if err := f.errs["stock:"+vid]; err != nil {
		return nil, err
	}
	raw, ok := f.stock[vid]
	if !ok {
		return map[string]any{}, nil
	}
	return decodeJSON(raw), nil
}

func (f *fakeRemote) GetReviews(_ context.Context, id string, page int) (map[string]any, error) {
	f.calls = append(f.calls, fmt.Sprintf("reviews:%s:%d", id, page))
	pages := f.reviews[id]
	if page > len(pages) {
		return map[string]any{"list": []any{}}, nil
	}
	return decodeJSON(pages[page-1]), nil
}

// fakeRepo - хранилище в памяти
type fakeRepo struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	marginLog []models.MarginLogEntry
	reviews   map[string]map[string]models.Review
	saves     int
	failSave  error
	// onSave срабатывает один раз перед сохранением, под мьютексом
	onSave func(r *fakeRepo)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[string]*models.Product{},
		reviews:  map[string]map[string]models.Review{},
	}
}

func (r *fakeRepo) put(p *models.Product) {
	r.products[p.ID] = cloneProduct(p)
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, utils.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *fakeRepo) GetByExternalID(_ context.Context, externalID string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			return cloneProduct(p), nil
		}
	}
	return nil, utils.ErrProductNotFound
}

func (r *fakeRepo) FindByExternalIDs(_ context.Context, ids []string) (map[string]models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]models.SyncState{}
	for _, id := range ids {
		for _, p := range r.products {
			if p.ExternalID != nil && *p.ExternalID == id {
				out[id] = p.State()
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveProduct(_ context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onSave != nil {
		hook := r.onSave
		r.onSave = nil
		hook(r)
	}
	if r.failSave != nil {
		return r.failSave
	}
	for id, other := range r.products {
		if id != p.ID && p.ExternalID != nil && other.ExternalID != nil && *other.ExternalID == *p.ExternalID {
			return utils.ErrExternalIDTaken
		}
	}
	r.saves++
	r.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *fakeRepo) AppendMarginLog(_ context.Context, entries ...models.MarginLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marginLog = append(r.marginLog, entries...)
	return nil
}

func (r *fakeRepo) ListMarginLog(_ context.Context, productID string, limit int) ([]models.MarginLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.MarginLogEntry{}
	for i := len(r.marginLog) - 1; i >= 0 && len(out) < limit; i-- {
		if r.marginLog[i].ProductID == productID {
			out = append(out, r.marginLog[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveReviews(_ context.Context, productID string, reviews []models.Review) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reviews[productID] == nil {
		r.reviews[productID] = map[string]models.Review{}
	}
	saved := 0
	for _, rv := range reviews {
		if _, ok := r.reviews[productID][rv.ExternalID]; ok {
			continue
		}
		r.reviews[productID][rv.ExternalID] = rv
		saved++
	}
	return saved, nil
}

func (r *fakeRepo) ListSyncStates(_ context.Context) ([]models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.products))
	for id := range r.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.SyncState, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.products[id].State())
	}
	return out, nil
}

func (r *fakeRepo) marginKinds(productID string) []models.MarginEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.MarginEventKind{}
	for _, e := range r.marginLog {
		if e.ProductID == productID {
			out = append(out, e.Kind)
		}
	}
	return out
}

// passTx выполняет fn без транзакции
type passTx struct {
	calls int
}

func (t *passTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// fakePublisher запоминает опубликованные сообщения
type fakePublisher struct {
	mu       sync.Mutex
	messages []interfaces.Message
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, interfaces.Message{Topic: topic, Key: key, Value: message})
	return nil
}

func (p *fakePublisher) Subscribe(context.Context, string, interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, m := range p.messages {
		var evt struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(m.Value, &evt)
		out = append(out, evt.Type)
	}
	return out
}

// fakeInvalidator считает сбросы сводки
type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return nil
}

// fakeMetrics запоминает исходы импорта
type fakeMetrics struct {
	outcomes   []string
	remoteErrs []string
	deviations int
	skipped    int
}

func (m *fakeMetrics) ObserveImport(outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}
func (m *fakeMetrics) IncRemoteError(op string)   { m.remoteErrs = append(m.remoteErrs, op) }
func (m *fakeMetrics) IncPriceDeviation()         { m.deviations++ }
func (m *fakeMetrics) AddSkippedRecords(n int)    { m.skipped += n }
func (m *fakeMetrics) ObserveBatch(int, int, int) {}

func testPricing(minPercent int64) *policy.PricingValidator {
	return policy.NewPricingValidator(policy.MarginPolicy{MinimumPercent: decimal.NewFromInt(minPercent)})
}

func nopLogger() interfaces.LoggerPort {
	return logger.NewNop()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func linkedProduct(id, externalID string) *models.Product {
	synced := fixedNow.Add(-time.Hour)
	return &models.Product{
		ID:                id,
		ExternalID:        strPtr(externalID),
		Name:              "Local name",
		Description:       "Local description",
		SKU:               "SKU-" + externalID,
		CostPrice:         dec("10"),
		SellingPrice:      dec("20"),
		Status:            models.StatusActive,
		SyncEnabled:       true,
		Images:            []string{"https://img/local.jpg"},
		Variants:          []models.Variant{},
		LastSyncedAt:      &synced,
		LastChangedFields: []string{},
		CreatedAt:         fixedNow.Add(-48 * time.Hour),
		UpdatedAt:         fixedNow.Add(-time.Hour),
	}
}
