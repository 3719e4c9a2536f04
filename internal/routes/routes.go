package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-pay/atlas_pay/internal/config"
	"github.com/atlas-pay/atlas_pay/internal/gateway"
	"github.com/atlas-pay/atlas_pay/internal/ledger"
	"github.com/atlas-pay/atlas_pay/internal/middleware"
	"github.com/atlas-pay/atlas_pay/internal/notification"
	"github.com/atlas-pay/atlas_pay/internal/schedule"
	"github.com/atlas-pay/atlas_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// schedule runner so main can drive it alongside the HTTP server.
func Setup(app *fiber.App, d Deps) (*schedule.Runner, error) {
	// Enforce backend presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Store and settlement gateway
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var bank gateway.Gateway
	if d.Cfg.BankURL != "" {
		bank = gateway.NewHTTPGateway(d.Cfg.BankURL, d.Cfg.BankTimeout, d.Logger)
	} else {
		bank = gateway.Confirming()
	}

	// Services and handlers
	notifier := notification.NewLoggerNotifier(d.Logger)
	saga := wallet.NewSaga(bank, notifier, d.Logger)
	walletSvc := wallet.NewService(store, saga, d.Logger)
	executor := schedule.NewExecutor(store, saga, notifier, d.Cfg.LockAttempts, d.Cfg.LockInterval, d.Logger)

	walletHandler := wallet.NewHandler(walletSvc)
	scheduleHandler := schedule.NewHandler(executor)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterScheduleRoutes(api, scheduleHandler)

	var runner *schedule.Runner
	if d.Cfg.RunnerInterval > 0 {
		runner = schedule.NewRunner(store, executor, d.Cfg.RunnerInterval, d.Logger)
	}
	return runner, nil
}
