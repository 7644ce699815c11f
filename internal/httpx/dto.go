package httpx

import (
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

type CheckoutRequest struct {
	CustomerID    string     `json:"customer_id"`
	PaymentMethod string     `json:"payment_method"`
	Billing       BillingDTO `json:"billing"`
}

type BillingDTO struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Country   string `json:"country"`
	OrderNote string `json:"order_note,omitempty"`
}

type CheckoutResponse struct {
	Status           string `json:"status"`
	OrderNumber      string `json:"order_number"`
	OrderStatus      string `json:"order_status"`
	Amount           string `json:"amount"`
	Tax              string `json:"tax"`
	ShippingHandling string `json:"shipping_handling"`
	RedirectURL      string `json:"redirect_url,omitempty"`
	PaymentID        string `json:"payment_id,omitempty"`
}

type CODCaptureRequest struct {
	OrderNumber string `json:"order_number"`
}

type CODCaptureResponse struct {
	Status        string  `json:"status"`
	RedirectURL   string  `json:"redirect_url"`
	OrderNumber   string  `json:"order_number"`
	Amount        float64 `json:"amount"`
	Items         int     `json:"items"`
	PaymentID     string  `json:"payment_id"`
	PaymentMethod string  `json:"payment_method"`
}

type PaymentReturnResponse struct {
	Status      string `json:"status"`
	OrderNumber string `json:"order_number"`
	PaymentID   string `json:"payment_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

type OrderResponse struct {
	OrderNumber      string            `json:"order_number"`
	Owner            string            `json:"owner"`
	Status           string            `json:"status"`
	IsOrdered        bool              `json:"is_ordered"`
	OrderTotal       string            `json:"order_total"`
	Tax              string            `json:"tax"`
	ShippingHandling string            `json:"shipping_handling"`
	PaymentID        string            `json:"payment_id,omitempty"`
	CreatedAt        string            `json:"created_at"`
	Products         []OrderProductDTO `json:"products"`
}

type OrderProductDTO struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	ProductPrice string `json:"product_price"`
}

type ErrorResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

func mapBilling(b BillingDTO) domain.Billing {
	return domain.Billing{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Phone:     b.Phone,
		Email:     b.Email,
		Address:   b.Address,
		City:      b.City,
		Country:   b.Country,
		OrderNote: b.OrderNote,
	}
}

func mapOrderToResponse(o *domain.Order, products []domain.OrderProduct) OrderResponse {
	out := OrderResponse{
		OrderNumber:      o.OrderNumber,
		Owner:            o.Owner,
		Status:           string(o.Status),
		IsOrdered:        o.IsOrdered,
		OrderTotal:       o.OrderTotal.String(),
		Tax:              o.Tax.String(),
		ShippingHandling: o.ShippingHandling.String(),
		PaymentID:        o.PaymentID,
		CreatedAt:        o.CreatedAt.Format(timeLayout),
		Products:         make([]OrderProductDTO, 0, len(products)),
	}
	for _, p := range products {
		out.Products = append(out.Products, OrderProductDTO{
			ProductID:    p.ProductID,
			Quantity:     p.Quantity,
			ProductPrice: p.ProductPrice.String(),
		})
	}
	return out
}
