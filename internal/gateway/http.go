package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

// DefaultTimeout bounds the settlement call, and with it the time the wallet
// row lock is held during a withdrawal.
const DefaultTimeout = 5 * time.Second

type submitRequest struct {
	Amount string `json:"amount"`
}

// bankResponse is the business envelope the settlement endpoint answers with.
// Status 200 is the sole confirmation signal; HTTP-level success alone is not
// sufficient.
type bankResponse struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

// HTTPGateway submits withdrawals to a bank-like settlement endpoint over
// HTTP.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPGateway builds a gateway against the given endpoint. A non-positive
// timeout falls back to DefaultTimeout.
func NewHTTPGateway(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGateway{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Submit issues one POST to the settlement endpoint and classifies whatever
// happens into an Outcome.
func (g *HTTPGateway) Submit(ctx context.Context, amount money.Amount) Outcome {
	body, err := json.Marshal(submitRequest{Amount: amount.String()})
	if err != nil {
		return Outcome{Result: Unreachable, StatusCode: http.StatusServiceUnavailable, Message: "service unavailable"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Result: Unreachable, StatusCode: http.StatusServiceUnavailable, Message: "service unavailable"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return g.classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Warn("settlement http error", "status", resp.StatusCode)
		return Outcome{Result: HTTPError, StatusCode: resp.StatusCode, Message: "HTTP error"}
	}

	var decoded bankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		g.logger.Warn("settlement response malformed", "error", err)
		return Outcome{Result: HTTPError, StatusCode: resp.StatusCode, Message: "malformed gateway response"}
	}

	if decoded.Status != http.StatusOK {
		return Outcome{Result: Rejected, StatusCode: decoded.Status, Message: decoded.Data}
	}
	return Outcome{Result: Confirmed, StatusCode: decoded.Status, Message: decoded.Data}
}

func (g *HTTPGateway) classifyTransport(err error) Outcome {
	var urlErr *url.Error
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		timedOut = true
	}
	if timedOut {
		g.logger.Warn("settlement timeout", "error", err)
		return Outcome{Result: Timeout, StatusCode: http.StatusRequestTimeout, Message: "request timeout"}
	}
	g.logger.Warn("settlement unreachable", "error", err)
	return Outcome{Result: Unreachable, StatusCode: http.StatusServiceUnavailable, Message: "service unavailable"}
}
