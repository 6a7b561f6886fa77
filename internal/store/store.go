package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrInvalidReference is returned when a write points at a row that does not exist.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrStaleStatus is returned when an order is no longer in the expected payment status.
	ErrStaleStatus = errors.New("payment status already finalized")
)

// ProductFilter narrows a product listing.
type ProductFilter struct {
	CategoryID int64
	Search     string
	// OrderBy is "unit_price" or "-unit_price"; anything else orders by id.
	OrderBy string
	Limit   int
	Offset  int
}

// Querier is every data-access operation, runnable on the pool or inside a transaction.
type Querier interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CountProductsInCategory(ctx context.Context, categoryID int64) (int, error)

	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ListProductImages(ctx context.Context, productIDs []int64) ([]models.ProductImage, error)
	CreateProductImage(ctx context.Context, img *models.ProductImage) error
	DeleteProductImage(ctx context.Context, productID, imageID int64) error

	CreateCart(ctx context.Context, cart *models.Cart) error
	GetCart(ctx context.Context, id string) (*models.Cart, error)
	DeleteCart(ctx context.Context, id string) error
	ListCartItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, cartID string, itemID int64) (*models.CartItem, error)
	GetCartItemByProduct(ctx context.Context, cartID string, productID int64) (*models.CartItem, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID string, itemID int64) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, customerID int64) ([]models.Order, error)
	ListAllOrders(ctx context.Context) ([]models.Order, error)
	ListOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) error
	DeleteOrder(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, u *models.User) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is a Querier that can also open a transaction scope.
type Repository interface {
	Querier
	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back on an error or a panic.
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// Queries implements Querier on either the pool or a transaction.
type Queries struct {
	ext sqlx.ExtContext
}

type Store struct {
	*Queries
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Queries: &Queries{ext: db}, db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Queries{ext: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// get wraps GetContext, mapping sql.ErrNoRows to ErrNotFound.
func (q *Queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q.ext, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q *Queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, query, args...)
}

func (q *Queries) selectIn(ctx context.Context, dest interface{}, query string, ids []int64) error {
	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// execOne runs a write that must touch exactly one row.
func (q *Queries) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", ErrInvalidReference, pqErr.Constraint)
		}
	}
	return err
}
