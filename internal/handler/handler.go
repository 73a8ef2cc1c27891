// Package handler exposes the storefront over HTTP with chi routing and jx
// JSON encoding.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// TokenVerifier checks customer bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Config holds the handler dependencies.
type Config struct {
	Products   *product.Service
	Categories *category.Service
	Orders     *order.Service
	Customers  *customer.Service
	Tokens     TokenVerifier
	APIKeys    auth.Repository
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// PlaceOrderLimiter throttles order placement per customer when set.
	PlaceOrderLimiter httpmiddleware.Limiter
}

// Handler serves the /api routes.
type Handler struct {
	products   *product.Service
	categories *category.Service
	orders     *order.Service
	customers  *customer.Service
	tokens     TokenVerifier
	apikeys    auth.Repository
	pepper     []byte
	limiter    httpmiddleware.Limiter
}

// New creates a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		products:   cfg.Products,
		categories: cfg.Categories,
		orders:     cfg.Orders,
		customers:  cfg.Customers,
		tokens:     cfg.Tokens,
		apikeys:    cfg.APIKeys,
		pepper:     cfg.APIKeyPepper,
		limiter:    cfg.PlaceOrderLimiter,
	}
}

// Routes mounts the API under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productID}", h.GetProduct)
		r.Get("/categories", h.ListCategories)
		r.Get("/categories/{categoryID}", h.GetCategory)
		r.Post("/customers", h.RegisterCustomer)
		r.Post("/customers/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireCustomer)
			place := r.With()
			if h.limiter != nil {
				place = r.With(httpmiddleware.RateLimit(h.limiter, principalKey))
			}
			place.Post("/customers/{customerID}/orders", h.PlaceOrder)
			r.Get("/orders/{orderID}", h.GetOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Post("/products", h.CreateProduct)
			r.Patch("/products/{productID}", h.UpdateProduct)
			r.Patch("/products/{productID}/price", h.UpdateProductPrice)
			r.Post("/products/{productID}/restock", h.RestockProduct)
			r.Delete("/products/{productID}", h.DeleteProduct)

			r.Post("/categories", h.CreateCategory)
			r.Patch("/categories/{categoryID}", h.UpdateCategory)
			r.Delete("/categories/{categoryID}", h.DeleteCategory)

			r.Get("/orders", h.ListOrders)
			r.Patch("/orders/{orderID}/status", h.UpdateOrderStatus)
			r.Delete("/orders/{orderID}", h.DeleteOrder)

			r.Get("/customers", h.ListCustomers)
			r.Get("/customers/{customerID}", h.GetCustomer)
			r.Patch("/customers/{customerID}", h.UpdateCustomer)
			r.Delete("/customers/{customerID}", h.DeleteCustomer)
		})
	})
}

type principalCtxKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	// Subject is the customer ID for bearer tokens and "apikey:<id>" for
	// API keys.
	Subject string
	Admin   bool
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the caller stored by the auth middlewares.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}
