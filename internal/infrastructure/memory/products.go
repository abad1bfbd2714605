// Package memory provides in-process repositories used by tests and single-node runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/adbroll/matcher/internal/domain"
)

// ProductRepository is a thread-safe in-memory catalog
type ProductRepository struct {
	data  map[string]domain.Product
	mutex sync.RWMutex
}

// NewProductRepository creates a catalog holding the given products
func NewProductRepository(products ...domain.Product) *ProductRepository {
	repo := &ProductRepository{data: make(map[string]domain.Product)}
	for _, p := range products {
		repo.data[p.ID] = p
	}
	return repo
}

// ListMatchable returns named products ordered by revenue desc then id asc
func (r *ProductRepository) ListMatchable(ctx context.Context) ([]domain.Product, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	products := make([]domain.Product, 0, len(r.data))
	for _, p := range r.data {
		if p.Matchable() {
			products = append(products, p)
		}
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].Revenue != products[j].Revenue {
			return products[i].Revenue > products[j].Revenue
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

// Get returns a product by ID
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, exists := r.data[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// Upsert inserts new products and updates existing ones matched by URL, or by name when the URL is empty
func (r *ProductRepository) Upsert(ctx context.Context, products []domain.Product) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	index := make(map[string]string, len(r.data))
	for id, p := range r.data {
		index[upsertKey(p)] = id
	}

	for _, p := range products {
		key := upsertKey(p)
		if id, exists := index[key]; exists {
			existing := r.data[id]
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		}
		p.ComputeEarning()
		r.data[p.ID] = p
		index[key] = p.ID
	}
	return len(products), nil
}

// RecomputeEarnings refreshes EarningPerSale for every product
func (r *ProductRepository) RecomputeEarnings(ctx context.Context) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, p := range r.data {
		p.ComputeEarning()
		r.data[id] = p
	}
	return int64(len(r.data)), nil
}

func upsertKey(p domain.Product) string {
	if url := strings.TrimSpace(p.URL); url != "" {
		return "url:" + url
	}
	return "name:" + strings.ToLower(strings.TrimSpace(p.Name))
}
