// Local development server: exposes the Cognito trigger handlers over HTTP
// so the whole confirmation/issuance flow can be exercised without a user
// pool. Runs against Postgres when DATABASE_URL is set, in-memory otherwise.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/userplane/userplane/pkg/claims"
	"github.com/userplane/userplane/pkg/config"
	"github.com/userplane/userplane/pkg/errx"
	"github.com/userplane/userplane/pkg/identity"
	"github.com/userplane/userplane/pkg/idp/idpmemory"
	"github.com/userplane/userplane/pkg/linker"
	"github.com/userplane/userplane/pkg/logx"
	"github.com/userplane/userplane/pkg/notify"
	"github.com/userplane/userplane/pkg/store"
	"github.com/userplane/userplane/pkg/store/storememory"
	"github.com/userplane/userplane/pkg/store/storepg"
	"github.com/userplane/userplane/pkg/tenant"
	"github.com/userplane/userplane/pkg/trigger"
)

func main() {
	cfg := config.Load()

	logx.Info("🚀 Starting userplane dev server...")

	records := newStore(cfg)
	policy := cfg.TenantPolicy()

	writer := idpmemory.NewWriter()
	link := linker.New(records, identity.NewResolver(records), tenant.NewResolver(policy))
	enricher := claims.NewEnricher(records, policy.MultiTenant())

	srv := &server{
		cfg:              cfg,
		writer:           writer,
		preSignup:        trigger.NewPreSignup(policy),
		postConfirmation: trigger.NewPostConfirmation(link, writer, trigger.WithNotifier(notify.NewClient(logSender{}))),
		preTokenGen:      trigger.NewPreTokenGen(enricher),
	}

	app := fiber.New(fiber.Config{
		AppName:               "userplane dev server",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
	}))

	app.Get("/health", srv.health)
	app.Post("/triggers/pre-signup", srv.handlePreSignup)
	app.Post("/triggers/post-confirmation", srv.handlePostConfirmation)
	app.Post("/triggers/pre-token-generation", srv.handlePreTokenGen)
	app.Post("/token", srv.handleToken)
	logx.Info("✓ Trigger routes registered")

	go func() {
		if err := app.Listen(cfg.Dev.HTTPAddr); err != nil {
			logx.Fatalf("Server failed: %v", err)
		}
	}()
	logx.Infof("✅ Listening on %s", cfg.Dev.HTTPAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logx.Info("🛑 Shutting down...")
	if err := app.Shutdown(); err != nil {
		logx.Errorf("Shutdown error: %v", err)
	}
	logx.Info("✅ Shutdown complete")
}

func newStore(cfg config.Config) store.RecordStore {
	if cfg.Dev.DatabaseURL == "" {
		logx.Info("  ✅ In-memory record store (set DATABASE_URL for Postgres)")
		return storememory.New()
	}

	db, err := sqlx.Connect("postgres", cfg.Dev.DatabaseURL)
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	if err := storepg.Migrate(context.Background(), db); err != nil {
		logx.Fatalf("Failed to migrate records schema: %v", err)
	}
	logx.Info("  ✅ Postgres record store ready")
	return storepg.New(db)
}

// logSender stands in for SES locally: the welcome email goes to the log.
type logSender struct{}

func (logSender) SendEmail(_ context.Context, msg notify.EmailMessage) error {
	logx.WithFields(logx.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("📧 (dev) email suppressed")
	return nil
}

// errorHandler converts errors to standard HTTP responses.
func errorHandler(c *fiber.Ctx, err error) error {
	logx.WithFields(logx.Fields{
		"path":   c.Path(),
		"method": c.Method(),
	}).Errorf("Request error: %v", err)

	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
			"code":  "FIBER_ERROR",
		})
	}

	var e *errx.Error
	if errx.As(err, &e) {
		response := fiber.Map{
			"error": e.Message,
			"code":  e.Code,
			"type":  string(e.Type),
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal Server Error",
		"code":  "INTERNAL_ERROR",
	})
}
