package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// ProductRepository handles product data access
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, product_code, description)
		VALUES (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, product.Name, product.ProductCode, product.Description)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("product %q: %w", product.ProductCode, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	product.ID = id
	product.CreatedAt = time.Now()

	return nil
}

// GetByCode retrieves a product by its product code
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*models.Product, error) {
	query := `
		SELECT id, name, product_code, description, created_at
		FROM products
		WHERE product_code = ?
	`

	product := &models.Product{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&product.ID,
		&product.Name,
		&product.ProductCode,
		&product.Description,
		&product.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

// List lists all products
func (r *ProductRepository) List(ctx context.Context) ([]*models.Product, error) {
	query := `
		SELECT id, name, product_code, description, created_at
		FROM products
		ORDER BY product_code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		product := &models.Product{}
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.ProductCode,
			&product.Description,
			&product.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	return products, rows.Err()
}
