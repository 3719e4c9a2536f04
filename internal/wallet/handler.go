package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/money"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type scheduleRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

type walletResponse struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

type entryResponse struct {
	ID             string    `json:"id"`
	Amount         string    `json:"amount"`
	Kind           string    `json:"kind"`
	Settled        bool      `json:"settled"`
	GatewayCode    int       `json:"gateway_code,omitempty"`
	GatewayMessage string    `json:"gateway_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Create opens a new empty wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	w, err := h.service.Create(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{ID: w.ID.String(), Balance: w.Balance.String()})
}

// Get returns the wallet's current balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := walletID(c)
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(walletResponse{ID: w.ID.String(), Balance: w.Balance.String()})
}

// Deposit credits the wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	id, err := walletID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.PositiveFromDecimal(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	balance, err := h.service.Deposit(c.UserContext(), id, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":   id.String(),
		"new_balance": balance.String(),
	})
}

// Withdraw debits the wallet through the settlement saga. A failed settlement
// still answers 200: the balance was restored and the audit entry records the
// gateway verdict.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	id, err := walletID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.PositiveFromDecimal(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Withdraw(c.UserContext(), id, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":   id.String(),
		"new_balance": result.Balance.String(),
		"settled":     result.Outcome.Confirmed(),
	})
}

// ScheduleWithdraw reserves funds and queues a withdrawal for a future time.
func (h *Handler) ScheduleWithdraw(c *fiber.Ctx) error {
	id, err := walletID(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.PositiveFromDecimal(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	sch, err := h.service.ScheduleWithdraw(c.UserContext(), id, amount, req.ScheduledAt)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"schedule_id":  sch.ID.String(),
		"wallet_id":    id.String(),
		"amount":       sch.Amount.String(),
		"scheduled_at": sch.ScheduledAt,
	})
}

// Transactions returns the wallet's audit trail.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	id, err := walletID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Entries(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:             e.ID.String(),
			Amount:         e.Amount.String(),
			Kind:           string(e.Kind),
			Settled:        e.Settled,
			GatewayCode:    e.GatewayCode,
			GatewayMessage: e.GatewayMessage,
			CreatedAt:      e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":    id.String(),
		"transactions": out,
	})
}

func walletID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}
	return id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrPastSchedule):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ledger.ErrScheduleNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
