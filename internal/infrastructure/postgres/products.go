package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adbroll/matcher/internal/domain"
	"gorm.io/gorm"
)

// ProductRepository stores the catalog in the products table
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListMatchable returns named products ordered by revenue desc then id asc
func (r *ProductRepository) ListMatchable(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Where("TRIM(name) <> ''").
		Order("revenue DESC, id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Get returns a product by ID
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Upsert inserts or updates products keyed by URL, or by name when the URL is empty
func (r *ProductRepository) Upsert(ctx context.Context, products []domain.Product) (int, error) {
	written := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range products {
			product := products[i]
			product.ComputeEarning()

			var existing domain.Product
			query := tx.Model(&domain.Product{})
			if url := strings.TrimSpace(product.URL); url != "" {
				query = query.Where("url = ?", url)
			} else {
				query = query.Where("(url IS NULL OR url = '') AND LOWER(TRIM(name)) = ?", strings.ToLower(strings.TrimSpace(product.Name)))
			}
			err := query.Order("id ASC").Take(&existing).Error

			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&product).Error; err != nil {
					return fmt.Errorf("insert product %q: %w", product.Name, err)
				}
			case err != nil:
				return err
			default:
				err := tx.Model(&existing).Updates(map[string]any{
					"name":             product.Name,
					"url":              product.URL,
					"category":         product.Category,
					"price":            product.Price,
					"commission_rate":  product.CommissionRate,
					"earning_per_sale": product.EarningPerSale,
					"revenue":          product.Revenue,
					"sales":            product.Sales,
					"updated_at":       product.UpdatedAt,
				}).Error
				if err != nil {
					return fmt.Errorf("update product %q: %w", product.Name, err)
				}
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// RecomputeEarnings refreshes earning_per_sale for every product
func (r *ProductRepository) RecomputeEarnings(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("1 = 1").
		Update("earning_per_sale", gorm.Expr("ROUND((price * commission_rate)::numeric, 2)"))
	return result.RowsAffected, result.Error
}
