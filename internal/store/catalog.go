package store

import (
	"context"
	"fmt"
	"strings"

	"shop-service/internal/models"
)

const productColumns = "id, title, description, slug, inventory, unit_price, category_id, updated_at"

// ListCategories returns all categories with their product counts
func (q *Queries) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := q.selectAll(ctx, &categories, `
		SELECT c.id, c.title, COUNT(p.id) AS products_count
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id
		ORDER BY c.id`)
	return categories, err
}

// GetCategory retrieves a category by ID
func (q *Queries) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := q.get(ctx, &c, `
		SELECT c.id, c.title, COUNT(p.id) AS products_count
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		WHERE c.id = $1
		GROUP BY c.id`, id)
	if err != nil {
		return nil, fmt.Errorf("category %d: %w", id, err)
	}
	return &c, nil
}

func (q *Queries) CreateCategory(ctx context.Context, c *models.Category) error {
	return q.get(ctx, &c.ID, "INSERT INTO categories (title) VALUES ($1) RETURNING id", c.Title)
}

func (q *Queries) UpdateCategory(ctx context.Context, c *models.Category) error {
	return q.execOne(ctx, "UPDATE categories SET title = $1 WHERE id = $2", c.Title, c.ID)
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	return q.execOne(ctx, "DELETE FROM categories WHERE id = $1", id)
}

// CountProductsInCategory counts products referencing a category
func (q *Queries) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	var n int
	err := q.get(ctx, &n, "SELECT COUNT(*) FROM products WHERE category_id = $1", categoryID)
	return n, err
}

// ListProducts returns one page of products matching the filter and the total match count
func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.CategoryID != 0 {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.get(ctx, &total, "SELECT COUNT(*) FROM products"+clause, args...); err != nil {
		return nil, 0, err
	}

	order := "id"
	switch f.OrderBy {
	case "unit_price":
		order = "unit_price, id"
	case "-unit_price":
		order = "unit_price DESC, id"
	}

	query := "SELECT " + productColumns + " FROM products" + clause + " ORDER BY " + order
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	products := []models.Product{}
	if err := q.selectAll(ctx, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// GetProduct retrieves a product by ID
func (q *Queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	if err := q.get(ctx, &p, "SELECT "+productColumns+" FROM products WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	return &p, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (q *Queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := q.selectIn(ctx, &products, "SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	return products, err
}

func (q *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	err := q.get(ctx, p, `
		INSERT INTO products (title, description, slug, inventory, unit_price, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+productColumns,
		p.Title, p.Description, p.Slug, p.Inventory, p.UnitPrice, p.CategoryID)
	return mapError(err)
}

func (q *Queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	err := q.get(ctx, p, `
		UPDATE products
		SET title = $1, description = $2, slug = $3, inventory = $4,
		    unit_price = $5, category_id = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING `+productColumns,
		p.Title, p.Description, p.Slug, p.Inventory, p.UnitPrice, p.CategoryID, p.ID)
	return mapError(err)
}

func (q *Queries) DeleteProduct(ctx context.Context, id int64) error {
	return q.execOne(ctx, "DELETE FROM products WHERE id = $1", id)
}

// ListProductImages returns the images of the given products
func (q *Queries) ListProductImages(ctx context.Context, productIDs []int64) ([]models.ProductImage, error) {
	if len(productIDs) == 0 {
		return []models.ProductImage{}, nil
	}
	var images []models.ProductImage
	err := q.selectIn(ctx, &images,
		"SELECT id, product_id, image FROM product_images WHERE product_id IN (?) ORDER BY id", productIDs)
	return images, err
}

func (q *Queries) CreateProductImage(ctx context.Context, img *models.ProductImage) error {
	return q.get(ctx, &img.ID,
		"INSERT INTO product_images (product_id, image) VALUES ($1, $2) RETURNING id",
		img.ProductID, img.Image)
}

func (q *Queries) DeleteProductImage(ctx context.Context, productID, imageID int64) error {
	return q.execOne(ctx, "DELETE FROM product_images WHERE id = $1 AND product_id = $2", imageID, productID)
}
