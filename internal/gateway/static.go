package gateway

import (
	"context"
	"net/http"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

// StaticGateway answers every submission with a fixed outcome. Used in tests
// and when no settlement endpoint is configured in development.
type StaticGateway struct {
	Outcome Outcome
}

// Static builds a gateway that always returns the given outcome.
func Static(o Outcome) StaticGateway {
	return StaticGateway{Outcome: o}
}

// Confirming builds a gateway that confirms every submission.
func Confirming() StaticGateway {
	return Static(Outcome{Result: Confirmed, StatusCode: http.StatusOK, Message: "success"})
}

// Submit returns the configured outcome.
func (g StaticGateway) Submit(_ context.Context, _ money.Amount) Outcome {
	return g.Outcome
}
