// Package handler serves the point-of-sale HTTP API.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-pos/internal/domain/auth"
	"github.com/xenking/boutique-pos/internal/domain/product"
	"github.com/xenking/boutique-pos/internal/domain/sale"
	"github.com/xenking/boutique-pos/internal/domain/supplier"
	"github.com/xenking/boutique-pos/internal/register"
	"github.com/xenking/boutique-pos/pkg/health"
	"github.com/xenking/boutique-pos/pkg/httpmiddleware"
)

// SaleService is the sale history used by the API. *sale.Service implements it.
type SaleService interface {
	Get(ctx context.Context, id string) (*sale.Sale, error)
	List(ctx context.Context, f sale.Filter) (sale.Page, error)
	Cancel(ctx context.Context, id, reason string) (*sale.Sale, error)
	DailyReport(ctx context.Context, day time.Time) (*sale.Report, error)
}

// Handler implements the API endpoints on top of the domain packages.
type Handler struct {
	products  product.Repository
	suppliers supplier.Repository
	registers *register.Manager
	sales     SaleService
	validate  *validator.Validate
	now       func() time.Time
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	suppliers supplier.Repository,
	registers *register.Manager,
	sales SaleService,
) *Handler {
	return &Handler{
		products:  products,
		suppliers: suppliers,
		registers: registers,
		sales:     sales,
		validate:  newValidator(),
		now:       time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RouterConfig holds what the router needs besides the Handler.
type RouterConfig struct {
	Auth   *auth.Authenticator
	Health *health.Health
	// Middlewares wrap every route, first is outermost.
	Middlewares []httpmiddleware.Middleware
	// Authenticated wrap /api routes after the API key is resolved, so they
	// can read auth.InfoFromContext.
	Authenticated []httpmiddleware.Middleware
}

// Router builds the HTTP routes.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middlewares {
		r.Use(mw)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/livez", cfg.Health.LiveEndpoint)
		r.Get("/readyz", cfg.Health.ReadyEndpoint)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth))
		for _, mw := range cfg.Authenticated {
			r.Use(mw)
		}

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/barcode/{barcode}", h.GetProductByBarcode)
			r.Get("/{id}", h.GetProduct)
			r.Group(func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeCatalogWrite))
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.Get("/{id}", h.GetSupplier)
			r.Group(func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeCatalogWrite))
				r.Post("/", h.CreateSupplier)
				r.Put("/{id}", h.UpdateSupplier)
				r.Delete("/{id}", h.DeleteSupplier)
			})
		})

		r.Route("/registers", func(r chi.Router) {
			r.Use(RequireScope(auth.ScopeSalesWrite))
			r.Post("/", h.OpenRegister)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRegister)
				r.Delete("/", h.CloseRegister)
				r.Post("/items", h.AddItem)
				r.Delete("/items", h.ClearItems)
				r.Patch("/items/{productId}", h.UpdateItemQuantity)
				r.Delete("/items/{productId}", h.RemoveItem)
				r.Put("/items/{productId}/discount", h.ApplyDiscount)
				r.Post("/checkout", h.Checkout)
			})
		})

		r.Route("/sales", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeSalesRead))
				r.Get("/", h.ListSales)
				r.Get("/daily-report", h.DailyReport)
				r.Get("/{id}", h.GetSale)
			})
			r.With(RequireScope(auth.ScopeSalesWrite)).Post("/{id}/cancel", h.CancelSale)
		})
	})

	return r
}
