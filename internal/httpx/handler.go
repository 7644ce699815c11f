package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/auditlog"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
	"github.com/ndlong/eshop-checkout/internal/checkout/ports"
	"github.com/ndlong/eshop-checkout/internal/gateway"
	"github.com/ndlong/eshop-checkout/internal/pkg/cache"
)

const timeLayout = time.RFC3339

// orderCacheTTL bounds how long a finalized order response is served from
// Redis before falling back to the store.
const orderCacheTTL = 5 * time.Minute

// Handler handles the checkout HTTP surface: starting a checkout, COD
// capture, the gateway return endpoint, and order lookup.
type Handler struct {
	orchestrator *checkout.Orchestrator
	cod          *gateway.COD
	vnpay        *gateway.VNPay
	cache        cache.Cache        // nil-safe: lookups skip the cache
	audit        auditlog.Repository // nil-safe: rejections are only logged
}

// NewHandler wires the handler. cache and audit may be nil.
func NewHandler(
	o *checkout.Orchestrator,
	cod *gateway.COD,
	vnpay *gateway.VNPay,
	c cache.Cache,
	audit auditlog.Repository,
) *Handler {
	return &Handler{
		orchestrator: o,
		cod:          cod,
		vnpay:        vnpay,
		cache:        c,
		audit:        audit,
	}
}

// BeginCheckout creates a Pending order from the caller's cart and starts
// the chosen payment method. COD captures inline; VNPay answers with the
// redirect URL the customer must be sent to.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	var method gateway.Method
	switch domain.PaymentMethod(req.PaymentMethod) {
	case domain.MethodCOD:
		method = h.cod
	case domain.MethodVNPay:
		method = h.vnpay
	default:
		writeError(w, http.StatusBadRequest, "payment_method must be COD or VNPAY")
		return
	}

	order, err := h.orchestrator.BeginCheckout(r.Context(), req.CustomerID, mapBilling(req.Billing), clientIP(r))
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	res, err := method.Initiate(r.Context(), order)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	resp := CheckoutResponse{
		Status:           "success",
		OrderNumber:      order.OrderNumber,
		OrderStatus:      string(order.Status),
		Amount:           order.OrderTotal.String(),
		Tax:              order.Tax.String(),
		ShippingHandling: order.ShippingHandling.String(),
		RedirectURL:      res.RedirectURL,
		PaymentID:        res.PaymentID,
	}
	if res.Result != nil {
		resp.OrderStatus = string(res.Result.Order.Status)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CaptureCOD finalizes a pending order as cash-on-delivery. Replays return
// the already-paid order with the same payment id.
func (h *Handler) CaptureCOD(w http.ResponseWriter, r *http.Request) {
	var req CODCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, "order_number is required")
		return
	}

	order, err := h.orchestrator.Order(r.Context(), req.OrderNumber)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	res, err := h.cod.Initiate(r.Context(), order)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	products, err := h.orchestrator.OrderProducts(r.Context(), req.OrderNumber)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	paid := res.Result.Order
	writeJSON(w, http.StatusOK, CODCaptureResponse{
		Status:        "success",
		RedirectURL:   completedURL(paid.OrderNumber, paid.PaymentID),
		OrderNumber:   paid.OrderNumber,
		Amount:        paid.OrderTotal.InexactFloat64(),
		Items:         len(products),
		PaymentID:     paid.PaymentID,
		PaymentMethod: string(domain.MethodCOD),
	})
}

// PaymentReturn is the VNPay return endpoint. The provider delivers it
// at-least-once and unordered; verification plus finalize idempotency make
// that safe.
func (h *Handler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	res, err := h.vnpay.VerifyCallback(r.Context(), params)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			h.auditSignatureRejection(r)
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		var declined *gateway.DeclinedError
		if errors.As(err, &declined) {
			writeJSON(w, http.StatusOK, PaymentReturnResponse{
				Status:      "failed",
				OrderNumber: params.Get("vnp_TxnRef"),
				Message:     fmt.Sprintf("payment declined (code %s)", declined.Code),
			})
			return
		}
		h.writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PaymentReturnResponse{
		Status:      "success",
		OrderNumber: res.Order.OrderNumber,
		PaymentID:   res.Order.PaymentID,
		RedirectURL: completedURL(res.Order.OrderNumber, res.Order.PaymentID),
	})
}

// GetOrder returns an order with its product snapshots. Finalized orders
// are immutable and served from the cache when possible.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "number")
	if orderNumber == "" {
		writeError(w, http.StatusBadRequest, "order number is required")
		return
	}

	if h.cache != nil {
		key := h.cache.GenerateKey("order", orderNumber)
		if cached, err := h.cache.Get(r.Context(), key); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	order, err := h.orchestrator.Order(r.Context(), orderNumber)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	products, err := h.orchestrator.OrderProducts(r.Context(), orderNumber)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	resp := mapOrderToResponse(order, products)
	if h.cache != nil && order.IsOrdered {
		if data, err := json.Marshal(resp); err == nil {
			key := h.cache.GenerateKey("order", orderNumber)
			if err := h.cache.Set(r.Context(), key, string(data), orderCacheTTL); err != nil {
				slog.WarnContext(r.Context(), "order cache write failed", "order_number", orderNumber, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeCheckoutError maps the checkout error taxonomy onto HTTP responses.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *checkout.InsufficientStockError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &stockErr):
		msgs := make([]string, len(stockErr.Shortages))
		for i, s := range stockErr.Shortages {
			msgs[i] = s.Message()
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Status:   "error",
			Message:  "insufficient stock",
			Messages: msgs,
		})
	case errors.Is(err, ports.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, checkout.ErrOrderClosed):
		writeError(w, http.StatusConflict, "order is already closed")
	default:
		slog.ErrorContext(r.Context(), "checkout request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// auditSignatureRejection records a rejected callback for manual review.
func (h *Handler) auditSignatureRejection(r *http.Request) {
	slog.WarnContext(r.Context(), "gateway callback rejected: signature mismatch",
		"query", r.URL.RawQuery,
	)
	if h.audit == nil {
		return
	}
	entry := auditlog.NewEntry(r.Context(),
		r.URL.Query().Get("vnp_TxnRef"),
		auditlog.StatusSignatureRejected,
		"payment_return",
		r.URL.RawQuery,
	)
	if err := h.audit.Save(r.Context(), entry); err != nil {
		slog.WarnContext(r.Context(), "audit entry not saved", "error", err)
	}
}

func completedURL(orderNumber, paymentID string) string {
	return fmt.Sprintf("/orders/order-completed?order_number=%s&payment_id=%s", orderNumber, paymentID)
}

// clientIP extracts the caller address, preferring the first hop of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		Status:  "error",
		Message: msg,
	})
}
