package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/pkg/errors"
)

type productRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *zap.Logger) *productRepository {
	return &productRepository{
		db:     db,
		logger: logger,
	}
}

const productColumns = `id, shopify_id, shop_domain, title, handle, description, vendor, product_type,
	tags, status, images, seo_title, seo_description, created_at, updated_at, published_at`

func (r *productRepository) Save(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			description = EXCLUDED.description,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			tags = EXCLUDED.tags,
			status = EXCLUDED.status,
			images = EXCLUDED.images,
			seo_title = EXCLUDED.seo_title,
			seo_description = EXCLUDED.seo_description,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return err
	}
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.ShopifyID,
		p.ShopDomain,
		p.Title,
		p.Handle,
		p.Description,
		p.Vendor,
		p.ProductType,
		string(tags),
		p.Status,
		string(images),
		p.SEO.Title,
		p.SEO.Description,
		p.CreatedAt,
		p.UpdatedAt,
		nullTime(p.PublishedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save product", zap.String("product_id", p.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *productRepository) SaveVariant(ctx context.Context, v *domain.ProductVariant) error {
	query := `
		INSERT INTO product_variants (id, shopify_id, product_id, title, price, compare_at_price, sku, barcode,
			inventory_quantity, inventory_policy, inventory_management, weight, weight_unit, position,
			option1, option2, option3, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			compare_at_price = EXCLUDED.compare_at_price,
			sku = EXCLUDED.sku,
			barcode = EXCLUDED.barcode,
			inventory_quantity = EXCLUDED.inventory_quantity,
			inventory_policy = EXCLUDED.inventory_policy,
			inventory_management = EXCLUDED.inventory_management,
			weight = EXCLUDED.weight,
			weight_unit = EXCLUDED.weight_unit,
			position = EXCLUDED.position,
			option1 = EXCLUDED.option1,
			option2 = EXCLUDED.option2,
			option3 = EXCLUDED.option3,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}

	var compareAt decimal.NullDecimal
	if v.CompareAtPrice != nil {
		compareAt = decimal.NewNullDecimal(*v.CompareAtPrice)
	}

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.ShopifyID,
		v.ProductID,
		v.Title,
		v.Price.StringFixed(2),
		compareAt,
		v.SKU,
		v.Barcode,
		v.InventoryQuantity,
		v.InventoryPolicy,
		v.InventoryManagement,
		v.Weight,
		v.WeightUnit,
		v.Position,
		v.Option1,
		v.Option2,
		v.Option3,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save product variant", zap.String("variant_id", v.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *productRepository) ListVariants(ctx context.Context, productID string) ([]*domain.ProductVariant, error) {
	query := `
		SELECT id, shopify_id, product_id, title, price, compare_at_price, sku, barcode,
			inventory_quantity, inventory_policy, inventory_management, weight, weight_unit, position,
			option1, option2, option3, created_at, updated_at
		FROM product_variants
		WHERE product_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		r.logger.Error("Failed to list product variants", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var variants []*domain.ProductVariant
	for rows.Next() {
		var (
			v         domain.ProductVariant
			compareAt decimal.NullDecimal
		)
		if err := rows.Scan(
			&v.ID,
			&v.ShopifyID,
			&v.ProductID,
			&v.Title,
			&v.Price,
			&compareAt,
			&v.SKU,
			&v.Barcode,
			&v.InventoryQuantity,
			&v.InventoryPolicy,
			&v.InventoryManagement,
			&v.Weight,
			&v.WeightUnit,
			&v.Position,
			&v.Option1,
			&v.Option2,
			&v.Option3,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if compareAt.Valid {
			d := compareAt.Decimal
			v.CompareAtPrice = &d
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, id); err != nil {
		r.logger.Error("Failed to delete product variants", zap.String("product_id", id), zap.Error(err))
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return err
	}
	return tx.Commit()
}

func (r *productRepository) ListByShop(ctx context.Context, shopDomain string, limit, offset int) ([]*domain.Product, error) {
	if limit <= 0 {
		limit = 250
	}
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE shop_domain = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, shopDomain, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *productRepository) CountByShop(ctx context.Context, shopDomain string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE shop_domain = $1`, shopDomain).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count products", zap.Error(err))
		return 0, err
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*domain.Product, error) {
	var (
		p         domain.Product
		tags      string
		images    string
		published sql.NullTime
	)
	if err := row.Scan(
		&p.ID,
		&p.ShopifyID,
		&p.ShopDomain,
		&p.Title,
		&p.Handle,
		&p.Description,
		&p.Vendor,
		&p.ProductType,
		&tags,
		&p.Status,
		&images,
		&p.SEO.Title,
		&p.SEO.Description,
		&p.CreatedAt,
		&p.UpdatedAt,
		&published,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		p.PublishedAt = &t
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
