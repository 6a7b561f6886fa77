// Package storetest provides an in-memory store.Repository for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"shop-service/internal/models"
	"shop-service/internal/store"
)

type state struct {
	seq        int64
	categories map[int64]models.Category
	products   map[int64]models.Product
	images     map[int64]models.ProductImage
	carts      map[string]models.Cart
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64]models.OrderItem
	users      map[int64]models.User
	events     map[string]string
}

func newState() *state {
	return &state{
		categories: map[int64]models.Category{},
		products:   map[int64]models.Product{},
		images:     map[int64]models.ProductImage{},
		carts:      map[string]models.Cart{},
		cartItems:  map[int64]models.CartItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64]models.OrderItem{},
		users:      map[int64]models.User{},
		events:     map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{seq: s.seq}
	c.categories = copyMap(s.categories)
	c.products = copyMap(s.products)
	c.images = copyMap(s.images)
	c.carts = copyMap(s.carts)
	c.cartItems = copyMap(s.cartItems)
	c.orders = copyMap(s.orders)
	c.orderItems = copyMap(s.orderItems)
	c.users = copyMap(s.users)
	c.events = copyMap(s.events)
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedValues[V any](m map[int64]V) []V {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Memory is a goroutine-safe in-memory store.Repository. Transactions are
// serialized and roll back by restoring a snapshot.
type Memory struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	s     *state
	fails map[string]error
	now   func() time.Time
}

var _ store.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{s: newState(), fails: map[string]error{}, now: time.Now}
}

// Fail makes every later call of the named operation return err.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[op] = err
}

func (m *Memory) lock(op string) (func(), error) {
	m.mu.Lock()
	if err := m.fails[op]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return m.mu.Unlock, nil
}

func (m *Memory) nextID() int64 {
	m.s.seq++
	return m.s.seq
}

// InTx runs fn against the store itself and restores a snapshot of the
// whole state on error or panic. Writes made by other goroutines outside a
// transaction while fn runs are lost by that rollback too, so tests should
// not mix concurrent non-transactional writes with failing transactions.
func (m *Memory) InTx(ctx context.Context, fn func(q store.Querier) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.s.clone()
	m.mu.Unlock()

	rollback := func() {
		m.mu.Lock()
		m.s = snapshot
		m.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(m); err != nil {
		rollback()
		return err
	}
	return nil
}

// Seed helpers

func (m *Memory) SeedCategory(title string) models.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := models.Category{ID: m.nextID(), Title: title}
	m.s.categories[c.ID] = c
	return c
}

func (m *Memory) SeedProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID()
	p.UpdatedAt = m.now()
	m.s.products[p.ID] = p
	return p
}

func (m *Memory) SeedUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextID()
	u.CreatedAt = m.now()
	m.s.users[u.ID] = u
	return u
}

// SetProductPrice changes a product price behind the services' back.
func (m *Memory) SetProductPrice(id int64, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.s.products[id]
	p.UnitPrice = price
	m.s.products[id] = p
}

// Counts for assertions

func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.s.orders)
}

func (m *Memory) OrderItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.s.orderItems)
}

// Categories

func (m *Memory) countProducts(categoryID int64) int {
	n := 0
	for _, p := range m.s.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n
}

func (m *Memory) ListCategories(ctx context.Context) ([]models.Category, error) {
	unlock, err := m.lock("ListCategories")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := sortedValues(m.s.categories)
	for i := range out {
		out[i].ProductsCount = m.countProducts(out[i].ID)
	}
	return out, nil
}

func (m *Memory) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	unlock, err := m.lock("GetCategory")
	if err != nil {
		return nil, err
	}
	defer unlock()
	c, ok := m.s.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, store.ErrNotFound)
	}
	c.ProductsCount = m.countProducts(id)
	return &c, nil
}

func (m *Memory) CreateCategory(ctx context.Context, c *models.Category) error {
	unlock, err := m.lock("CreateCategory")
	if err != nil {
		return err
	}
	defer unlock()
	c.ID = m.nextID()
	m.s.categories[c.ID] = *c
	return nil
}

func (m *Memory) UpdateCategory(ctx context.Context, c *models.Category) error {
	unlock, err := m.lock("UpdateCategory")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.categories[c.ID]; !ok {
		return store.ErrNotFound
	}
	m.s.categories[c.ID] = *c
	return nil
}

func (m *Memory) DeleteCategory(ctx context.Context, id int64) error {
	unlock, err := m.lock("DeleteCategory")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.categories[id]; !ok {
		return store.ErrNotFound
	}
	if m.countProducts(id) > 0 {
		return store.ErrInvalidReference
	}
	delete(m.s.categories, id)
	return nil
}

func (m *Memory) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	unlock, err := m.lock("CountProductsInCategory")
	if err != nil {
		return 0, err
	}
	defer unlock()
	return m.countProducts(categoryID), nil
}

// Products

func (m *Memory) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	unlock, err := m.lock("ListProducts")
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := []models.Product{}
	for _, p := range sortedValues(m.s.products) {
		if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		matched = append(matched, p)
	}

	switch f.OrderBy {
	case "unit_price":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].UnitPrice.LessThan(matched[j].UnitPrice) })
	case "-unit_price":
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].UnitPrice.GreaterThan(matched[j].UnitPrice) })
	}

	total := len(matched)
	if f.Limit > 0 {
		start := f.Offset
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *Memory) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	unlock, err := m.lock("GetProduct")
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := m.s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	unlock, err := m.lock("GetProductsByIDs")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := []models.Product{}
	seen := map[int64]bool{}
	for _, id := range ids {
		if p, ok := m.s.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	unlock, err := m.lock("CreateProduct")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.categories[p.CategoryID]; !ok {
		return store.ErrInvalidReference
	}
	p.ID = m.nextID()
	p.UpdatedAt = m.now()
	m.s.products[p.ID] = *p
	return nil
}

func (m *Memory) UpdateProduct(ctx context.Context, p *models.Product) error {
	unlock, err := m.lock("UpdateProduct")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.products[p.ID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := m.s.categories[p.CategoryID]; !ok {
		return store.ErrInvalidReference
	}
	p.UpdatedAt = m.now()
	m.s.products[p.ID] = *p
	return nil
}

func (m *Memory) DeleteProduct(ctx context.Context, id int64) error {
	unlock, err := m.lock("DeleteProduct")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, it := range m.s.orderItems {
		if it.ProductID == id {
			return store.ErrInvalidReference
		}
	}
	delete(m.s.products, id)
	for k, img := range m.s.images {
		if img.ProductID == id {
			delete(m.s.images, k)
		}
	}
	for k, it := range m.s.cartItems {
		if it.ProductID == id {
			delete(m.s.cartItems, k)
		}
	}
	return nil
}

func (m *Memory) ListProductImages(ctx context.Context, productIDs []int64) ([]models.ProductImage, error) {
	unlock, err := m.lock("ListProductImages")
	if err != nil {
		return nil, err
	}
	defer unlock()
	wanted := map[int64]bool{}
	for _, id := range productIDs {
		wanted[id] = true
	}
	out := []models.ProductImage{}
	for _, img := range sortedValues(m.s.images) {
		if wanted[img.ProductID] {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *Memory) CreateProductImage(ctx context.Context, img *models.ProductImage) error {
	unlock, err := m.lock("CreateProductImage")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.products[img.ProductID]; !ok {
		return store.ErrInvalidReference
	}
	img.ID = m.nextID()
	m.s.images[img.ID] = *img
	return nil
}

func (m *Memory) DeleteProductImage(ctx context.Context, productID, imageID int64) error {
	unlock, err := m.lock("DeleteProductImage")
	if err != nil {
		return err
	}
	defer unlock()
	img, ok := m.s.images[imageID]
	if !ok || img.ProductID != productID {
		return store.ErrNotFound
	}
	delete(m.s.images, imageID)
	return nil
}

// Carts

func (m *Memory) CreateCart(ctx context.Context, cart *models.Cart) error {
	unlock, err := m.lock("CreateCart")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.carts[cart.ID]; ok {
		return store.ErrDuplicate
	}
	cart.CreatedAt = m.now()
	m.s.carts[cart.ID] = *cart
	return nil
}

func (m *Memory) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	unlock, err := m.lock("GetCart")
	if err != nil {
		return nil, err
	}
	defer unlock()
	c, ok := m.s.carts[id]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (m *Memory) DeleteCart(ctx context.Context, id string) error {
	unlock, err := m.lock("DeleteCart")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.carts[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.s.carts, id)
	for k, it := range m.s.cartItems {
		if it.CartID == id {
			delete(m.s.cartItems, k)
		}
	}
	return nil
}

func (m *Memory) ListCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	unlock, err := m.lock("ListCartItems")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := []models.CartItem{}
	for _, it := range sortedValues(m.s.cartItems) {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) GetCartItem(ctx context.Context, cartID string, itemID int64) (*models.CartItem, error) {
	unlock, err := m.lock("GetCartItem")
	if err != nil {
		return nil, err
	}
	defer unlock()
	it, ok := m.s.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return nil, fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}
	return &it, nil
}

func (m *Memory) GetCartItemByProduct(ctx context.Context, cartID string, productID int64) (*models.CartItem, error) {
	unlock, err := m.lock("GetCartItemByProduct")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, it := range m.s.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			return &it, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	unlock, err := m.lock("CreateCartItem")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.carts[item.CartID]; !ok {
		return store.ErrInvalidReference
	}
	if _, ok := m.s.products[item.ProductID]; !ok {
		return store.ErrInvalidReference
	}
	for _, it := range m.s.cartItems {
		if it.CartID == item.CartID && it.ProductID == item.ProductID {
			return store.ErrDuplicate
		}
	}
	item.ID = m.nextID()
	m.s.cartItems[item.ID] = *item
	return nil
}

func (m *Memory) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	unlock, err := m.lock("UpdateCartItemQuantity")
	if err != nil {
		return err
	}
	defer unlock()
	it, ok := m.s.cartItems[itemID]
	if !ok {
		return store.ErrNotFound
	}
	it.Quantity = quantity
	m.s.cartItems[itemID] = it
	return nil
}

func (m *Memory) DeleteCartItem(ctx context.Context, cartID string, itemID int64) error {
	unlock, err := m.lock("DeleteCartItem")
	if err != nil {
		return err
	}
	defer unlock()
	it, ok := m.s.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return store.ErrNotFound
	}
	delete(m.s.cartItems, itemID)
	return nil
}

// Orders

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	unlock, err := m.lock("CreateOrder")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.users[order.CustomerID]; !ok {
		return store.ErrInvalidReference
	}
	order.ID = m.nextID()
	order.PlacedAt = m.now()
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentStatusPending
	}
	m.s.orders[order.ID] = *order
	return nil
}

func (m *Memory) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	unlock, err := m.lock("CreateOrderItems")
	if err != nil {
		return err
	}
	defer unlock()
	for i := range items {
		if _, ok := m.s.orders[items[i].OrderID]; !ok {
			return store.ErrInvalidReference
		}
		items[i].ID = m.nextID()
		m.s.orderItems[items[i].ID] = items[i]
	}
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	unlock, err := m.lock("GetOrder")
	if err != nil {
		return nil, err
	}
	defer unlock()
	o, ok := m.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (m *Memory) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	unlock, err := m.lock("ListOrders")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := []models.Order{}
	for _, o := range sortedValues(m.s.orders) {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	unlock, err := m.lock("ListAllOrders")
	if err != nil {
		return nil, err
	}
	defer unlock()
	return sortedValues(m.s.orders), nil
}

func (m *Memory) ListOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	unlock, err := m.lock("ListOrderItems")
	if err != nil {
		return nil, err
	}
	defer unlock()
	wanted := map[int64]bool{}
	for _, id := range orderIDs {
		wanted[id] = true
	}
	out := []models.OrderItem{}
	for _, it := range sortedValues(m.s.orderItems) {
		if wanted[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) error {
	unlock, err := m.lock("UpdateOrderPaymentStatus")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := m.s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if o.PaymentStatus != from {
		return store.ErrStaleStatus
	}
	o.PaymentStatus = to
	m.s.orders[orderID] = o
	return nil
}

func (m *Memory) DeleteOrder(ctx context.Context, id int64) error {
	unlock, err := m.lock("DeleteOrder")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := m.s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.s.orders, id)
	for k, it := range m.s.orderItems {
		if it.OrderID == id {
			delete(m.s.orderItems, k)
		}
	}
	return nil
}

// Users

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	unlock, err := m.lock("CreateUser")
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range m.s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: users_username_key", store.ErrDuplicate)
		}
		if existing.Email == u.Email {
			return fmt.Errorf("%w: users_email_key", store.ErrDuplicate)
		}
	}
	u.ID = m.nextID()
	u.CreatedAt = m.now()
	m.s.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	unlock, err := m.lock("GetUserByID")
	if err != nil {
		return nil, err
	}
	defer unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	unlock, err := m.lock("GetUserByUsername")
	if err != nil {
		return nil, err
	}
	defer unlock()
	for _, u := range m.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
}

func (m *Memory) UpdateUserProfile(ctx context.Context, u *models.User) error {
	unlock, err := m.lock("UpdateUserProfile")
	if err != nil {
		return err
	}
	defer unlock()
	existing, ok := m.s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Phone = u.Phone
	existing.Address = u.Address
	existing.BirthDate = u.BirthDate
	m.s.users[u.ID] = existing
	return nil
}

// Processed events

func (m *Memory) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	unlock, err := m.lock("IsEventProcessed")
	if err != nil {
		return false, err
	}
	defer unlock()
	_, ok := m.s.events[eventID]
	return ok, nil
}

func (m *Memory) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	unlock, err := m.lock("MarkEventProcessed")
	if err != nil {
		return err
	}
	defer unlock()
	m.s.events[eventID] = eventType
	return nil
}
