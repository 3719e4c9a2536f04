package gateway

import (
	"context"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

// Result is the category of a settlement attempt. Exactly one applies per
// attempt and only Confirmed leaves the withdrawal debited.
type Result string

const (
	// Confirmed means the HTTP call succeeded and the business status was 200.
	Confirmed Result = "confirmed"
	// Rejected means the gateway answered but the business status was not 200.
	Rejected Result = "rejected"
	// HTTPError means the gateway returned a non-2xx HTTP status.
	HTTPError Result = "http_error"
	// Unreachable means the connection could not be established.
	Unreachable Result = "unreachable"
	// Timeout means the call exceeded the configured deadline.
	Timeout Result = "timeout"
)

// Outcome is the categorized result of one settlement call. Transport errors
// never escape the gateway; they are folded into the taxonomy so callers
// switch on values rather than error types.
type Outcome struct {
	Result     Result
	StatusCode int
	Message    string
}

// Confirmed reports whether the withdrawal was settled.
func (o Outcome) Confirmed() bool {
	return o.Result == Confirmed
}

// Gateway submits withdrawals to the external settlement endpoint.
type Gateway interface {
	Submit(ctx context.Context, amount money.Amount) Outcome
}
