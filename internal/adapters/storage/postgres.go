package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/tx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation      = "23505"
	externalIDConstraint = "products_external_id_key"
)

// ProductStorage - хранилище товаров, журнала наценки и отзывов в PostgreSQL
type ProductStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает пул соединений и проверяет доступность БД
func NewPostgresStorage(ctx context.Context, connectionString string) (*ProductStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return NewPostgresStorageWithPool(ctx, pool)
}

func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*ProductStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &ProductStorage{
		pool: pool,
	}, nil
}

// Pool возвращает пул соединений для менеджера транзакций
func (r *ProductStorage) Pool() *pgxpool.Pool {
	return r.pool
}

// Migrate создает схему, если ее еще нет
func (r *ProductStorage) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close закрывает соединение с БД
func (r *ProductStorage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// getExecutor возвращает исполнителя запросов (транзакцию или пул) и признак транзакции
func (r *ProductStorage) getExecutor(ctx context.Context) (executor, bool) {
	if t, ok := tx.FromContext(ctx); ok {
		return t, true
	}
	return r.pool, false
}

const productColumns = `
	id, external_id, name, description, category_name, sku,
	selling_price, cost_price, stock, images, variants, status,
	sync_enabled, locks, last_synced_at, last_changed_fields, last_raw_payload,
	created_at, updated_at`

// GetByID получает товар по ID. В транзакции строка блокируется.
func (r *ProductStorage) GetByID(ctx context.Context, id string) (*models.Product, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByExternalID получает товар по идентификатору поставщика. В транзакции строка блокируется.
func (r *ProductStorage) GetByExternalID(ctx context.Context, externalID string) (*models.Product, error) {
	return r.getOne(ctx, "external_id = $1", externalID)
}

func (r *ProductStorage) getOne(ctx context.Context, where string, arg string) (*models.Product, error) {
	exec, inTx := r.getExecutor(ctx)

	query := `SELECT ` + productColumns + ` FROM catalog.products WHERE ` + where
	if inTx {
		query += ` FOR UPDATE`
	}

	product, err := scanProduct(exec.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// FindByExternalIDs возвращает срезы состояния для привязанных товаров одним запросом
func (r *ProductStorage) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]models.SyncState, error) {
	exec, _ := r.getExecutor(ctx)

	rows, err := exec.Query(ctx, `
		SELECT id, external_id, sync_enabled, last_synced_at
		FROM catalog.products
		WHERE external_id = ANY($1)
	`, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.SyncState, len(externalIDs))
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		out[*state.ExternalID] = state
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}
	return out, nil
}

// ListSyncStates возвращает срезы состояния всех товаров для сводки
func (r *ProductStorage) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	exec, _ := r.getExecutor(ctx)

	rows, err := exec.Query(ctx, `
		SELECT id, external_id, sync_enabled, last_synced_at
		FROM catalog.products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer rows.Close()

	out := []models.SyncState{}
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}
	return out, nil
}

// ListProducts возвращает страницу локальных товаров, последние измененные первыми
func (r *ProductStorage) ListProducts(ctx context.Context, limit, offset int) ([]*models.Product, int, error) {
	exec, _ := r.getExecutor(ctx)

	var total int
	if err := exec.QueryRow(ctx, `SELECT COUNT(*) FROM catalog.products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}
	if total == 0 {
		return []*models.Product{}, 0, nil
	}

	rows, err := exec.Query(ctx, `
		SELECT `+productColumns+`
		FROM catalog.products
		ORDER BY updated_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, total, nil
}

// SaveProduct создает или обновляет товар. external_id после привязки не меняется.
func (r *ProductStorage) SaveProduct(ctx context.Context, product *models.Product) error {
	exec, _ := r.getExecutor(ctx)

	images, err := json.Marshal(nonNilStrings(product.Images))
	if err != nil {
		return fmt.Errorf("failed to marshal images: %w", err)
	}
	variants := product.Variants
	if variants == nil {
		variants = []models.Variant{}
	}
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	locks, err := json.Marshal(product.Locks)
	if err != nil {
		return fmt.Errorf("failed to marshal locks: %w", err)
	}

	var rawPayload []byte
	if len(product.LastRawPayload) > 0 {
		rawPayload = product.LastRawPayload
	}

	_, err = exec.Exec(ctx, `
		INSERT INTO catalog.products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id)
		DO UPDATE SET
			external_id = COALESCE(catalog.products.external_id, EXCLUDED.external_id),
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category_name = EXCLUDED.category_name,
			sku = EXCLUDED.sku,
			selling_price = EXCLUDED.selling_price,
			cost_price = EXCLUDED.cost_price,
			stock = EXCLUDED.stock,
			images = EXCLUDED.images,
			variants = EXCLUDED.variants,
			status = EXCLUDED.status,
			sync_enabled = EXCLUDED.sync_enabled,
			locks = EXCLUDED.locks,
			last_synced_at = EXCLUDED.last_synced_at,
			last_changed_fields = EXCLUDED.last_changed_fields,
			last_raw_payload = EXCLUDED.last_raw_payload,
			updated_at = EXCLUDED.updated_at
	`,
		product.ID, product.ExternalID, product.Name, product.Description, product.CategoryName, product.SKU,
		product.SellingPrice, product.CostPrice, product.Stock, images, variantsJSON, product.Status,
		product.SyncEnabled, locks, product.LastSyncedAt, nonNilStrings(product.LastChangedFields), rawPayload,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == externalIDConstraint {
			return fmt.Errorf("failed to save product %s: %w", product.ID, utils.ErrExternalIDTaken)
		}
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// AppendMarginLog добавляет записи журнала одним пакетом
func (r *ProductStorage) AppendMarginLog(ctx context.Context, entries ...models.MarginLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	exec, _ := r.getExecutor(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO catalog.margin_log (id, product_id, variant_id, created_at, kind, actor_type, actor_id,
				old_price, new_price, old_status, new_status, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, e.ID, e.ProductID, e.VariantID, e.CreatedAt, string(e.Kind), e.Actor.Type, e.Actor.ID,
			nullDecimal(e.OldPrice), nullDecimal(e.NewPrice), e.OldStatus, e.NewStatus, e.Note)
	}

	results := exec.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to append margin log: %w", err)
		}
	}
	return results.Close()
}

// ListMarginLog возвращает журнал товара, новые записи первыми
func (r *ProductStorage) ListMarginLog(ctx context.Context, productID string, limit int) ([]models.MarginLogEntry, error) {
	exec, _ := r.getExecutor(ctx)

	rows, err := exec.Query(ctx, `
		SELECT id, product_id, variant_id, created_at, kind, actor_type, actor_id,
			old_price, new_price, old_status, new_status, note
		FROM catalog.margin_log
		WHERE product_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query margin log: %w", err)
	}
	defer rows.Close()

	entries := []models.MarginLogEntry{}
	for rows.Next() {
		var (
			e                  models.MarginLogEntry
			kind               string
			oldPrice, newPrice decimal.NullDecimal
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &e.VariantID, &e.CreatedAt, &kind, &e.Actor.Type, &e.Actor.ID,
			&oldPrice, &newPrice, &e.OldStatus, &e.NewStatus, &e.Note); err != nil {
			return nil, fmt.Errorf("failed to scan margin log row: %w", err)
		}
		e.Kind = models.MarginEventKind(kind)
		if oldPrice.Valid {
			e.OldPrice = &oldPrice.Decimal
		}
		if newPrice.Valid {
			e.NewPrice = &newPrice.Decimal
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating margin log rows: %w", rows.Err())
	}
	return entries, nil
}

// SaveReviews сохраняет отзывы; уже известные пропускаются
func (r *ProductStorage) SaveReviews(ctx context.Context, productID string, reviews []models.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	exec, _ := r.getExecutor(ctx)

	batch := &pgx.Batch{}
	for _, rv := range reviews {
		images, err := json.Marshal(nonNilStrings(rv.Images))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal review images: %w", err)
		}
		batch.Queue(`
			INSERT INTO catalog.reviews (product_id, external_id, author, rating, body, images, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (product_id, external_id) DO NOTHING
		`, productID, rv.ExternalID, rv.Author, rv.Rating, rv.Body, images, rv.CreatedAt)
	}

	results := exec.SendBatch(ctx, batch)
	saved := 0
	for range reviews {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("failed to save review: %w", err)
		}
		saved += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to save reviews: %w", err)
	}
	return saved, nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p                            models.Product
		images, variants, locks, raw []byte
	)
	if err := row.Scan(
		&p.ID, &p.ExternalID, &p.Name, &p.Description, &p.CategoryName, &p.SKU,
		&p.SellingPrice, &p.CostPrice, &p.Stock, &images, &variants, &p.Status,
		&p.SyncEnabled, &locks, &p.LastSyncedAt, &p.LastChangedFields, &raw,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("failed to unmarshal images: %w", err)
	}
	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal(locks, &p.Locks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal locks: %w", err)
	}
	if len(raw) > 0 {
		p.LastRawPayload = json.RawMessage(raw)
	}
	if p.LastChangedFields == nil {
		p.LastChangedFields = []string{}
	}
	return &p, nil
}

func scanSyncState(rows pgx.Rows) (models.SyncState, error) {
	var state models.SyncState
	if err := rows.Scan(&state.ProductID, &state.ExternalID, &state.SyncEnabled, &state.LastSyncedAt); err != nil {
		return state, fmt.Errorf("failed to scan sync state: %w", err)
	}
	return state, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
