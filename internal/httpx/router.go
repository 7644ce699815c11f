package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndlong/eshop-checkout/internal/httpx/middlewares"
	"github.com/ndlong/eshop-checkout/internal/pkg/metrics"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.Trace)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/checkout", handler.BeginCheckout)
	r.Post("/orders/cod", handler.CaptureCOD)
	r.Get("/orders/payment-return", handler.PaymentReturn)
	r.Get("/orders/{number}", handler.GetOrder)

	r.Get("/healthz", handler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
