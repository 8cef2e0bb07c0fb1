package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// ProductReadModel serves the denormalized product_projections table.
type ProductReadModel struct {
	db *sql.DB
}

// NewProductReadModel wires a ProductReadModel to db.
func NewProductReadModel(db *sql.DB) *ProductReadModel {
	return &ProductReadModel{db: db}
}

func (r *ProductReadModel) CreateProjection(ctx context.Context, product *entity.ProductAggregate) error {
	now := time.Now()
	reserved := product.ReservedStock(now)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_projections
			(product_id, name, price, description, total_stock, reserved_stock, available_stock, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (product_id) DO NOTHING`,
		product.AggregateID(), product.Name(), product.Price(), product.Description(),
		product.TotalStock(), reserved, product.TotalStock()-reserved, product.Version(), product.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert product projection %s: %w", product.AggregateID(), err)
	}
	return nil
}

// UpdateProjection overwrites the row with a full snapshot of product's
// current state. The WHERE clause on version guards against a stale write
// clobbering a newer one.
func (r *ProductReadModel) UpdateProjection(ctx context.Context, product *entity.ProductAggregate) error {
	now := time.Now()
	reserved := product.ReservedStock(now)
	result, err := r.db.ExecContext(ctx, `
		UPDATE product_projections
		SET name = $1, price = $2, description = $3, total_stock = $4,
		    reserved_stock = $5, available_stock = $6, version = $7, updated_at = NOW()
		WHERE product_id = $8 AND version <= $7`,
		product.Name(), product.Price(), product.Description(), product.TotalStock(),
		reserved, product.TotalStock()-reserved, product.Version(), product.AggregateID(),
	)
	if err != nil {
		return fmt.Errorf("update product projection %s: %w", product.AggregateID(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return r.CreateProjection(ctx, product)
	}
	return nil
}

func (r *ProductReadModel) GetProduct(ctx context.Context, productID string) (*repository.ProductProjection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT product_id, name, price, description, total_stock, reserved_stock, available_stock, version, created_at, updated_at
		FROM product_projections WHERE product_id = $1`, productID)
	proj, err := scanProductProjection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return proj, err
}

func (r *ProductReadModel) ListProducts(ctx context.Context) ([]repository.ProductProjection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, price, description, total_stock, reserved_stock, available_stock, version, created_at, updated_at
		FROM product_projections ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []repository.ProductProjection
	for rows.Next() {
		proj, err := scanProductProjection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *proj)
	}
	return out, rows.Err()
}

func scanProductProjection(row rowScanner) (*repository.ProductProjection, error) {
	var p repository.ProductProjection
	if err := row.Scan(&p.ProductID, &p.Name, &p.Price, &p.Description, &p.TotalStock,
		&p.ReservedStock, &p.AvailableStock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
