package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/payment"
	"shop-service/internal/service"
	"shop-service/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubGateway struct {
	err error
}

func (g *stubGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &payment.ChargeResult{Succeeded: true, ProviderRef: "stub"}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	repo     *storetest.Memory
	gateway  *stubGateway
	category models.Category
	product  models.Product
}

const testPassword = "correct-horse-42"

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := storetest.NewMemory()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	repo.SeedUser(models.User{Username: "alice", Email: "alice@example.com", PasswordHash: string(hash), Phone: "555", Address: "1 Main St"})
	repo.SeedUser(models.User{Username: "admin", Email: "admin@example.com", PasswordHash: string(hash), IsStaff: true})
	category := repo.SeedCategory("Kitchen")
	product := repo.SeedProduct(models.Product{
		Title:      "Kettle",
		Slug:       "kettle",
		Inventory:  5,
		UnitPrice:  decimal.RequireFromString("10.00"),
		CategoryID: category.ID,
	})

	gw := &stubGateway{}
	users := service.NewUserService(repo)
	h := NewHandler(
		service.NewCatalogService(repo, nil),
		service.NewCartService(repo),
		service.NewOrderService(repo, gw, nil, time.Minute),
		users,
		NewBasicAuthenticator(users),
		2,
	)
	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{router: router, handler: h, repo: repo, gateway: gw, category: category, product: product}
}

func (s *testServer) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, testPassword)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("database", failingPinger{})
	w = s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCategories_Permissions(t *testing.T) {
	s := newTestServer(t)
	body := gin.H{"title": "Garden"}

	w := s.do(http.MethodGet, "/api/v1/categories", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/categories", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = s.do(http.MethodPost, "/api/v1/categories", "alice", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/categories", "admin", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Garden", decode(t, w)["title"])
}

func TestBadCredentialsRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.SetBasicAuth("alice", "wrong-password")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCategories_DeleteGuard(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodDelete, "/api/v1/categories/"+itoa(s.category.ID), "admin", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, decode(t, w)["error"], "cannot be deleted")

	w = s.do(http.MethodGet, "/api/v1/categories/"+itoa(s.category.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["products_count"])

	w = s.do(http.MethodGet, "/api/v1/products/"+itoa(s.product.ID), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCategories_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/categories", "admin", gin.H{"title": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")

	w = s.do(http.MethodGet, "/api/v1/categories/abc", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, "/api/v1/categories/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts_ListPaginates(t *testing.T) {
	s := newTestServer(t)
	s.repo.SeedProduct(models.Product{Title: "Mug", UnitPrice: decimal.RequireFromString("5"), CategoryID: s.category.ID})
	s.repo.SeedProduct(models.Product{Title: "Pan", UnitPrice: decimal.RequireFromString("20"), CategoryID: s.category.ID})

	w := s.do(http.MethodGet, "/api/v1/products?ordering=unit_price", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 3, body["count"])
	assert.Len(t, body["results"], 2)
	assert.Nil(t, body["previous"])
	assert.Equal(t, "/api/v1/products?ordering=unit_price&page=2", body["next"])

	first := body["results"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Mug", first["title"])
	assert.Equal(t, "Kitchen", first["category"])

	w = s.do(http.MethodGet, "/api/v1/products?ordering=unit_price&page=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["results"], 1)
	assert.Nil(t, body["next"])
	assert.Equal(t, "/api/v1/products?ordering=unit_price", body["previous"])

	w = s.do(http.MethodGet, "/api/v1/products?search=kett", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestProducts_AdminWrites(t *testing.T) {
	s := newTestServer(t)
	payload := gin.H{"title": "Teapot", "unit_price": "15.50", "inventory": 4, "category_id": s.category.ID}

	w := s.do(http.MethodPost, "/api/v1/products", "alice", payload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/products", "admin", payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "teapot", created["slug"])
	id := int64(created["id"].(float64))

	w = s.do(http.MethodPatch, "/api/v1/products/"+itoa(id), "admin", gin.H{"inventory": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, decode(t, w)["inventory"])

	w = s.do(http.MethodPost, "/api/v1/products/"+itoa(id)+"/images", "admin", gin.H{"image": "teapot.png"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/api/v1/products/"+itoa(id), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["images"], 1)

	w = s.do(http.MethodDelete, "/api/v1/products/"+itoa(id), "admin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/carts", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	cartID := decode(t, w)["id"].(string)

	w = s.do(http.MethodPost, "/api/v1/carts/"+cartID+"/items", "", gin.H{"product_id": s.product.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	itemID := int64(decode(t, w)["id"].(float64))

	w = s.do(http.MethodPatch, "/api/v1/carts/"+cartID+"/items/"+itoa(itemID), "", gin.H{"quantity": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", "", gin.H{"cart_id": cartID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", "alice", gin.H{"cart_id": cartID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, models.PaymentStatusComplete, order["payment_status"])
	assert.Len(t, order["items"], 1)

	w = s.do(http.MethodGet, "/api/v1/carts/"+cartID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/orders", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)

	orderPath := "/api/v1/orders/" + itoa(int64(order["id"].(float64)))
	w = s.do(http.MethodPatch, orderPath, "alice", gin.H{"payment_status": "FAILED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, orderPath, "admin", gin.H{"payment_status": "FAILED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_EmptyCartAndMissingBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/carts", "", nil)
	cartID := decode(t, w)["id"].(string)

	w = s.do(http.MethodPost, "/api/v1/orders", "alice", gin.H{"cart_id": cartID})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "The cart is empty.")

	w = s.do(http.MethodPost, "/api/v1/orders", "alice", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "cart_id")
}

func TestCheckout_PaymentProcessorError(t *testing.T) {
	s := newTestServer(t)
	s.gateway.err = errors.New("processor unreachable")

	w := s.do(http.MethodPost, "/api/v1/carts", "", nil)
	cartID := decode(t, w)["id"].(string)
	w = s.do(http.MethodPost, "/api/v1/carts/"+cartID+"/items", "", gin.H{"product_id": s.product.ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", "alice", gin.H{"cart_id": cartID})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	order := body["order"].(map[string]interface{})
	assert.Equal(t, models.PaymentStatusFailed, order["payment_status"])
}

func TestUsers_RegisterAndProfile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/users/register", "", gin.H{
		"username": "erin", "email": "erin@example.com",
		"password": "Pl4net-Express", "confirm_password": "Pl4net-Express",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodPost, "/api/v1/users/register", "", gin.H{
		"username": "frank", "email": "frank@example.com",
		"password": "Pl4net-Express", "confirm_password": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/users/profile", "alice", gin.H{
		"username": "hacker", "birth_date": "1990-04-01", "address": "2 Side St",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	profile := decode(t, w)
	assert.Equal(t, "alice", profile["username"])
	assert.Equal(t, "1990-04-01", profile["birth_date"])
	assert.Equal(t, "2 Side St", profile["address"])
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
