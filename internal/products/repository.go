package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence for the product catalog.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	All(ctx context.Context, activeOnly bool) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetByBarcode(ctx context.Context, barcode string) (Product, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id int64) error
	Options(ctx context.Context) (Options, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, name, barcode, category_id, type_id, supplier_id, cost_price, sale_price, stock_quantity, reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.CategoryID, &p.TypeID, &p.SupplierID, &p.CostPrice, &p.SalePrice, &p.StockQuantity, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filters.CategoryID != nil {
		args = append(args, *filters.CategoryID)
		where += ` AND category_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR barcode ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("products: count: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, filters.Limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", err)
	}
	return products, total, nil
}

func (r *repository) All(ctx context.Context, activeOnly bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("products: all: %w", err)
	}
	return collectProducts(rows)
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return findProduct("get", r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *repository) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	return findProduct("get by barcode", r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
}

// findProduct scans a single-row lookup. A missing row is ErrNotFound; any
// other failure is wrapped with op.
func findProduct(op string, row pgx.Row) (Product, error) {
	p, err := scanProduct(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Product{}, fmt.Errorf("products: %s: %w", op, err)
	}
	return p, err
}

func (r *repository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE barcode = $1)`, barcode).Scan(&exists); err != nil {
		return false, fmt.Errorf("products: barcode exists: %w", err)
	}
	return exists, nil
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `INSERT INTO products (name, barcode, category_id, type_id, supplier_id, cost_price, sale_price, stock_quantity, reorder_level, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
RETURNING `+productColumns,
		p.Name, p.Barcode, p.CategoryID, p.TypeID, p.SupplierID, p.CostPrice, p.SalePrice, p.StockQuantity, p.ReorderLevel, p.IsActive, now)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, translateError("create", err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `UPDATE products SET name = $2, barcode = $3, category_id = $4, type_id = $5, supplier_id = $6,
cost_price = $7, sale_price = $8, stock_quantity = $9, reorder_level = $10, is_active = $11, updated_at = $12
WHERE id = $1
RETURNING `+productColumns,
		p.ID, p.Name, p.Barcode, p.CategoryID, p.TypeID, p.SupplierID, p.CostPrice, p.SalePrice, p.StockQuantity, p.ReorderLevel, p.IsActive, time.Now().UTC())
	updated, err := scanProduct(row)
	if err != nil {
		return Product{}, translateError("update", err)
	}
	return updated, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return translateError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Options(ctx context.Context) (Options, error) {
	var opts Options
	var err error
	if opts.Categories, err = r.options(ctx, `SELECT id, name FROM product_categories ORDER BY name`); err != nil {
		return Options{}, err
	}
	if opts.Types, err = r.options(ctx, `SELECT id, name FROM product_types ORDER BY name`); err != nil {
		return Options{}, err
	}
	if opts.Suppliers, err = r.options(ctx, `SELECT id, name FROM suppliers WHERE is_active ORDER BY name`); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (r *repository) options(ctx context.Context, query string) ([]Choice, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("products: options: %w", err)
	}
	defer rows.Close()
	var out []Choice
	for rows.Next() {
		var o Choice
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// translateError maps constraint violations onto package errors.
func translateError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			if op == "delete" {
				return ErrInUse
			}
			return FieldErrors{"reference": "unknown category, type or supplier"}
		}
	}
	return fmt.Errorf("products: %s: %w", op, err)
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case "barcode":
		return "barcode " + dir
	case "price":
		return "sale_price " + dir
	case "stock":
		return "stock_quantity " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir + ", id " + dir
	}
}
