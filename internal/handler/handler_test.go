package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository/memory"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const (
	testAdminKey = "admin-secret-key"
	testPepper   = "pepper"
)

type fixture struct {
	router     http.Handler
	products   *memory.ProductRepository
	categories *memory.CategoryRepository
	orders     *memory.OrderRepository
	customers  *customer.Service
	tokens     *auth.Tokens
	apikeys    *memory.APIKeyRepository
}

func newFixture(t *testing.T, limiter httpmiddleware.Limiter, products ...product.Product) *fixture {
	t.Helper()
	ctx := context.Background()

	productRepo := memory.NewProductRepository(products...)
	categoryRepo := memory.NewCategoryRepository(category.Category{
		ID:          "cake",
		Name:        "Cakes",
		Description: "Layer cakes",
	})
	orderRepo := memory.NewOrderRepository()
	customerRepo := memory.NewCustomerRepository()
	apikeys := memory.NewAPIKeyRepository()
	require.NoError(t, apikeys.Upsert(ctx, &auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashAPIKey([]byte(testPepper), testAdminKey),
		Name:    "test admin",
		Scopes:  []string{auth.ScopeAdmin},
	}))

	tokens := auth.NewTokens([]byte("jwt-secret"), time.Hour)
	customers := customer.NewService(customerRepo, tokens, bcrypt.MinCost)
	orders, err := order.NewService(productRepo, customerRepo, orderRepo, order.Config{
		Replays: memory.NewReplayStore(),
	})
	require.NoError(t, err)

	h := New(Config{
		Products:          product.NewService(productRepo, categoryRepo),
		Categories:        category.NewService(categoryRepo, productRepo),
		Orders:            orders,
		Customers:         customers,
		Tokens:            tokens,
		APIKeys:           apikeys,
		APIKeyPepper:      []byte(testPepper),
		PlaceOrderLimiter: limiter,
	})
	r := chi.NewRouter()
	h.Routes(r)

	return &fixture{
		router:     r,
		products:   productRepo,
		categories: categoryRepo,
		orders:     orderRepo,
		customers:  customers,
		tokens:     tokens,
		apikeys:    apikeys,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// register creates a customer and returns its ID and a bearer header.
func (f *fixture) register(t *testing.T, email string) (string, []string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/customers", map[string]string{
		"name":     "Ada",
		"email":    email,
		"password": "secret123",
		"address":  "1 Main St",
		"phone":    "0123456789",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))

	w = f.do(t, http.MethodPost, "/api/customers/login", map[string]string{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	return c.ID, []string{"Authorization", "Bearer " + login.Token}
}

func admin() []string {
	return []string{APIKeyHeader, testAdminKey}
}

func widget(id string, price string, stock int) product.Product {
	return product.Product{
		ID:    id,
		Name:  "Widget " + id,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

type errorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

type orderBody struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Total      json.Number `json:"total"`
	Lines      []struct {
		ProductID   string      `json:"product_id"`
		ProductName string      `json:"product_name"`
		Quantity    int         `json:"quantity"`
		UnitPrice   json.Number `json:"unit_price"`
		Subtotal    json.Number `json:"subtotal"`
	} `json:"lines"`
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) orderBody {
	t.Helper()
	var o orderBody
	d := json.NewDecoder(bytes.NewReader(w.Body.Bytes()))
	d.UseNumber()
	require.NoError(t, d.Decode(&o), w.Body.String())
	return o
}

func placeBody(lines ...any) map[string]any {
	out := make([]map[string]any, 0, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		out = append(out, map[string]any{"product_id": lines[i], "quantity": lines[i+1]})
	}
	return map[string]any{"shipping_address": "1 Main St", "lines": out}
}
