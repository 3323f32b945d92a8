package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/avirag26/scholaro-api/internal/resilience"
)

// Guarded wraps a Gateway so order creation is refused while the breaker is open.
// Signature checks are local and pass straight through.
type Guarded struct {
	Gateway
	Breaker *resilience.Breaker
}

// CreateOrder implements Gateway.
func (g Guarded) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	var out GatewayOrder
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Gateway.CreateOrder(ctx, req)
		return err
	}, countsAgainstGateway)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return GatewayOrder{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	return out, err
}

func countsAgainstGateway(err error) bool {
	return !errors.Is(err, ErrInvalidRequest) && !errors.Is(err, context.Canceled)
}
