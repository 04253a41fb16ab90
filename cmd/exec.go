package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tixhub/config"
	"tixhub/internal/handlers"
	"tixhub/internal/repository"
	"tixhub/internal/services"
	"tixhub/internal/services/artifact"
	"tixhub/internal/services/bank/paystack"
	"tixhub/internal/services/mail"
	"tixhub/internal/services/notify"
	"tixhub/monitoring"
	"tixhub/security"
	"tixhub/utils"

	_ "tixhub/migrations"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	gateway, err := paystack.New(cfg.Paystack, utils.NewCircuitBreaker("paystack"))
	if err != nil {
		return err
	}

	renderer, err := artifact.NewRenderer(cfg.TicketSigningKey)
	if err != nil {
		return err
	}

	eventRepo := repository.NewEventRepository(app)
	ticketRepo := repository.NewTicketRepository(app)

	ticketService := services.NewTicketService(
		eventRepo,
		ticketRepo,
		gateway,
		renderer,
		mail.NewSMTPClient(cfg.Mail),
		utils.NewRedisLocker(redisClient, "tixhub:lock:", cfg.FulfillmentLockTTL),
		notify.New(cfg.PubNub, app.Logger()),
		services.TicketServiceConfig{
			CallbackBaseURL:     cfg.ServerBaseURL,
			Logger:              app.Logger(),
			FreeOnlyForUnpriced: cfg.FreeOnlyForUnpriced,
		},
	)

	ticketHandler := handlers.NewTicketHandler(ticketService, cfg.Paystack.SecretKey, app.Logger())
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, app.Logger())

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if cfg.EnableMetrics {
			go monitoring.NewMonitor(ticketRepo, cfg.MetricsInterval).Run(ctx)
		}

		// Purchase endpoints
		e.Router.POST("/event/{eventId}/ticket/buy", ticketHandler.BuyTicket).BindFunc(limiter.Limit("buy"))
		e.Router.POST("/event/{eventId}/ticket/free", ticketHandler.FreeTicket).BindFunc(limiter.Limit("free"))

		// Paystack redirect and webhook
		e.Router.GET("/ticket/verify-payment/event/{eventId}/ticket/{ticketId}/callback", ticketHandler.VerifyPayment)
		e.Router.POST("/ticket/verify-payment/event/{eventId}/ticket/{ticketId}/callback", ticketHandler.VerifyPayment)
		e.Router.POST("/ticket/paystack/webhook", ticketHandler.PaystackWebhook)

		// Ticket endpoints
		e.Router.GET("/ticket/{ticketId}", ticketHandler.GetTicket)
		e.Router.POST("/ticket/{ticketId}/pay", ticketHandler.PayTicket).BindFunc(limiter.Limit("pay"))
		e.Router.POST("/ticket/{ticketId}/fulfill", ticketHandler.RetryFulfillment)
		e.Router.POST("/ticket/verify-code", ticketHandler.VerifyTicketCode).BindFunc(limiter.Limit("verify-code"))

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		app.Logger().Info("Server routes registered", "environment", cfg.Environment)

		return e.Next()
	})

	return app.Start()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
