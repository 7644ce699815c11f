package gateway

import (
	"context"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

// COD is the cash-on-delivery method: no external provider, the order is
// finalized on the spot with a synthetic payment id.
type COD struct {
	finalizer Finalizer
}

func NewCOD(f Finalizer) *COD {
	return &COD{finalizer: f}
}

var _ Method = (*COD)(nil)

func (c *COD) Name() domain.PaymentMethod {
	return domain.MethodCOD
}

// Initiate finalizes the order immediately. The payment id is derived from
// the order number, so a retried capture presents the same proof and lands
// on the idempotent replay path.
func (c *COD) Initiate(ctx context.Context, order *domain.Order) (*InitiateResult, error) {
	proof := checkout.PaymentProof{
		PaymentID: "COD-" + order.OrderNumber,
		Method:    domain.MethodCOD,
	}
	res, err := c.finalizer.Finalize(ctx, order.OrderNumber, proof)
	if err != nil {
		return nil, err
	}
	return &InitiateResult{
		PaymentID: res.Order.PaymentID,
		Result:    res,
	}, nil
}
