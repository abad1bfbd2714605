package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/infrastructure/spreadsheet"
	"github.com/adbroll/matcher/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImportService loads catalog spreadsheets into the product store
type ImportService struct {
	products domain.ProductRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewImportService creates a new import service with dependencies
func NewImportService(products domain.ProductRepository, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// Import reads a CSV or XLSX catalog and upserts its products.
// Rows without a product name are skipped.
func (s *ImportService) Import(ctx context.Context, filename string, r io.Reader) (*domain.ImportSummary, error) {
	records, err := spreadsheet.ReadRecords(filename, r)
	if err != nil {
		return nil, err
	}

	summary := &domain.ImportSummary{Rows: len(records)}
	now := s.now()

	products := make([]domain.Product, 0, len(records))
	for _, record := range records {
		product, ok := spreadsheet.MapToProduct(record)
		if !ok {
			summary.Skipped++
			continue
		}
		product.ID = uuid.NewString()
		product.CreatedAt = now
		product.UpdatedAt = now
		products = append(products, product)
	}

	if len(products) > 0 {
		written, err := s.products.Upsert(ctx, products)
		if err != nil {
			return nil, fmt.Errorf("%w: import products: %v", domain.ErrStoreUnavailable, err)
		}
		summary.Imported = written
	}

	metrics.ProductsImportedTotal.Add(float64(summary.Imported))
	s.logger.Info("Catalog imported",
		zap.String("file", filename),
		zap.Int("rows", summary.Rows),
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped))

	return summary, nil
}
