package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductCache caches product detail documents. Implementations may fail;
// the catalog falls back to the store.
type ProductCache interface {
	Get(ctx context.Context, productID int64) (*models.ProductDetail, bool, error)
	Set(ctx context.Context, detail *models.ProductDetail) error
	Invalidate(ctx context.Context, productID int64) error
}

// CatalogService handles categories, products and product images
type CatalogService struct {
	repo   store.Repository
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(repo store.Repository, cache ProductCache) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// CategoryInput is the writable part of a category
type CategoryInput struct {
	Title *string `json:"title"`
}

// ProductInput is the writable part of a product. Nil fields are left
// unchanged on a partial update.
type ProductInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Slug        *string          `json:"slug"`
	Inventory   *int             `json:"inventory"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	CategoryID  *int64           `json:"category_id"`
}

// ProductQuery selects one page of products
type ProductQuery struct {
	CategoryID int64
	Search     string
	Ordering   string
	Page       int
	PageSize   int
}

type ProductPage struct {
	Count   int                    `json:"count"`
	Results []models.ProductDetail `json:"results"`
}

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
)

var maxUnitPrice = decimal.RequireFromString("999999.99")

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	return s.repo.ListCategories(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetCategory")
	defer span.End()

	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return c, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateCategory")
	defer span.End()

	c := &models.Category{}
	if err := applyCategoryInput(c, in, false); err != nil {
		return nil, err
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	s.logger.Info("Category created", zap.Int64("category_id", c.ID))
	return c, nil
}

// UpdateCategory replaces (partial=false) or patches a category
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, in CategoryInput, partial bool) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateCategory")
	defer span.End()

	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := applyCategoryInput(c, in, partial); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, translateStoreError(err)
	}
	s.invalidateCategory(ctx, id)
	return c, nil
}

// invalidateCategory drops cached products carrying the category title
func (s *CatalogService) invalidateCategory(ctx context.Context, categoryID int64) {
	if s.cache == nil {
		return
	}
	products, _, err := s.repo.ListProducts(ctx, store.ProductFilter{CategoryID: categoryID})
	if err != nil {
		s.logger.Warn("Failed to list category products for cache invalidation",
			zap.Int64("category_id", categoryID), zap.Error(err))
		return
	}
	for _, p := range products {
		s.invalidate(ctx, p.ID)
	}
}

// DeleteCategory refuses to delete a category that still has products
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteCategory")
	defer span.End()

	err := s.repo.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetCategory(ctx, id); err != nil {
			return err
		}
		n, err := q.CountProductsInCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrCategoryInUse
		}
		return q.DeleteCategory(ctx, id)
	})
	if errors.Is(err, store.ErrInvalidReference) {
		// a product was added between the count and the delete
		return ErrCategoryInUse
	}
	if err != nil {
		return translateStoreError(err)
	}

	s.logger.Info("Category deleted", zap.Int64("category_id", id))
	return nil
}

func applyCategoryInput(c *models.Category, in CategoryInput, partial bool) error {
	verr := &ValidationError{}
	switch {
	case in.Title == nil:
		if !partial {
			verr.Add("title", msgRequired)
		}
	case strings.TrimSpace(*in.Title) == "":
		verr.Add("title", msgBlank)
	case len(*in.Title) > 255:
		verr.Add("title", "Ensure this field has no more than 255 characters.")
	default:
		c.Title = strings.TrimSpace(*in.Title)
	}
	return verr.OrNil()
}

// ListProducts returns one page of products with their category title and images
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	filter := store.ProductFilter{
		CategoryID: q.CategoryID,
		Search:     q.Search,
	}
	switch q.Ordering {
	case "", "unit_price", "-unit_price":
		filter.OrderBy = q.Ordering
	default:
		return nil, NewValidationError("ordering", fmt.Sprintf("Invalid ordering %q.", q.Ordering))
	}
	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		filter.Limit = q.PageSize
		filter.Offset = (page - 1) * q.PageSize
	}

	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if q.PageSize > 0 && q.Page > 1 && len(products) == 0 {
		return nil, fmt.Errorf("page %d: %w", q.Page, ErrNotFound)
	}

	details, err := s.describeProducts(ctx, s.repo, products)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Count: total, Results: details}, nil
}

// GetProduct returns a product detail, served from the cache when possible
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if s.cache != nil {
		detail, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		case ok:
			util.CatalogCacheHitsTotal.Inc()
			return detail, nil
		}
		util.CatalogCacheMissesTotal.Inc()
	}

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	details, err := s.describeProducts(ctx, s.repo, []models.Product{*p})
	if err != nil {
		return nil, err
	}
	detail := &details[0]

	if s.cache != nil {
		if err := s.cache.Set(ctx, detail); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return detail, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	p := &models.Product{}
	if err := applyProductInput(p, in, false); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return nil, NewValidationError("category_id", "Invalid pk - object does not exist.")
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return s.describeOne(ctx, p)
}

// UpdateProduct replaces (partial=false) or patches a product
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput, partial bool) (*models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := applyProductInput(p, in, partial); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return nil, NewValidationError("category_id", "Invalid pk - object does not exist.")
		}
		return nil, translateStoreError(err)
	}

	s.invalidate(ctx, id)
	return s.describeOne(ctx, p)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return NewValidationError(nonFieldErrors, "Product cannot be deleted because it is referenced by an order.")
		}
		return translateStoreError(err)
	}
	s.invalidate(ctx, id)
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *CatalogService) ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, translateStoreError(err)
	}
	return s.repo.ListProductImages(ctx, []int64{productID})
}

// AddProductImage attaches an image reference to a product
func (s *CatalogService) AddProductImage(ctx context.Context, productID int64, image string) (*models.ProductImage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.AddProductImage")
	defer span.End()

	image = strings.TrimSpace(image)
	if image == "" {
		return nil, NewValidationError("image", msgRequired)
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, translateStoreError(err)
	}

	img := &models.ProductImage{ProductID: productID, Image: image}
	if err := s.repo.CreateProductImage(ctx, img); err != nil {
		return nil, translateStoreError(err)
	}
	s.invalidate(ctx, productID)
	return img, nil
}

func (s *CatalogService) DeleteProductImage(ctx context.Context, productID, imageID int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProductImage")
	defer span.End()

	if err := s.repo.DeleteProductImage(ctx, productID, imageID); err != nil {
		return translateStoreError(err)
	}
	s.invalidate(ctx, productID)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", productID), zap.Error(err))
	}
}

func (s *CatalogService) describeOne(ctx context.Context, p *models.Product) (*models.ProductDetail, error) {
	details, err := s.describeProducts(ctx, s.repo, []models.Product{*p})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// describeProducts joins category titles and images onto products
func (s *CatalogService) describeProducts(ctx context.Context, q store.Querier, products []models.Product) ([]models.ProductDetail, error) {
	details := make([]models.ProductDetail, 0, len(products))
	if len(products) == 0 {
		return details, nil
	}

	categories, err := q.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	titles := make(map[int64]string, len(categories))
	for _, c := range categories {
		titles[c.ID] = c.Title
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	images, err := q.ListProductImages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load product images: %w", err)
	}
	byProduct := make(map[int64][]models.ProductImage)
	for _, img := range images {
		byProduct[img.ProductID] = append(byProduct[img.ProductID], img)
	}

	for _, p := range products {
		imgs := byProduct[p.ID]
		if imgs == nil {
			imgs = []models.ProductImage{}
		}
		details = append(details, models.ProductDetail{
			Product:  p,
			Category: titles[p.CategoryID],
			Images:   imgs,
		})
	}
	return details, nil
}

func applyProductInput(p *models.Product, in ProductInput, partial bool) error {
	verr := &ValidationError{}
	required := func(field string, present bool) bool {
		if !present && !partial {
			verr.Add(field, msgRequired)
		}
		return present
	}

	if required("title", in.Title != nil) {
		if title := strings.TrimSpace(*in.Title); title == "" {
			verr.Add("title", msgBlank)
		} else {
			p.Title = title
		}
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Inventory != nil {
		if *in.Inventory < 0 {
			verr.Add("inventory", "Ensure this value is greater than or equal to 0.")
		} else {
			p.Inventory = *in.Inventory
		}
	}
	if required("unit_price", in.UnitPrice != nil) {
		price := *in.UnitPrice
		switch {
		case price.IsNegative():
			verr.Add("unit_price", "Ensure this value is greater than or equal to 0.")
		case price.GreaterThan(maxUnitPrice):
			verr.Add("unit_price", "Ensure that there are no more than 8 digits in total.")
		case price.Exponent() < -2 && !price.Equal(price.Truncate(2)):
			verr.Add("unit_price", "Ensure that there are no more than 2 decimal places.")
		default:
			p.UnitPrice = price
		}
	}
	if required("category_id", in.CategoryID != nil) {
		p.CategoryID = *in.CategoryID
	}
	if in.Slug != nil && strings.TrimSpace(*in.Slug) != "" {
		slug := slugify(*in.Slug)
		if slug == "" {
			verr.Add("slug", "Enter a valid slug consisting of letters, numbers, underscores or hyphens.")
		} else {
			p.Slug = slug
		}
	} else if p.Slug == "" || (in.Slug != nil && in.Title != nil) {
		p.Slug = slugify(p.Title)
	}

	return verr.OrNil()
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9_]+`)

func slugify(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

// translateStoreError maps store lookups that matched nothing to ErrNotFound
func translateStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}
