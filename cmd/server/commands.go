// cmd/server/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/router"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/pkg/assistant"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
	"github.com/campushub/backend/pkg/whatsapp"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "Run database migrations before serving")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.RunMigrations(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logrus.Info("Migrations complete")
			return nil
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail stale pending payments once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			payments := services.NewPaymentService(db, cfg, nil, nil, nil)
			swept, err := payments.SweepStalePending(cmd.Context(), cfg.Payment.PendingTTL)
			if err != nil {
				return err
			}
			logrus.WithField("swept", swept).Info("Sweep complete")
			return nil
		},
	}
}

func serve(autoMigrate bool) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer database.Close(db)

	if autoMigrate {
		if err := database.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := router.Dependencies{
		DB:        db,
		Config:    cfg,
		Providers: paymentProviders(cfg),
		Mailer:    services.NewMailer(cfg.Email),
		Assistant: assistant.NewClient(assistant.Config{
			Endpoint:  cfg.Assistant.Endpoint,
			APIKey:    cfg.Assistant.APIKey,
			Model:     cfg.Assistant.Model,
			Version:   cfg.Assistant.Version,
			MaxTokens: cfg.Assistant.MaxTokens,
			Timeout:   cfg.Assistant.Timeout,
		}),
	}

	// Only assign a live gateway; a typed nil would defeat the nil checks
	if gateway := dialChain(ctx, cfg); gateway != nil {
		deps.Chain = gateway
	}

	if cfg.WhatsApp.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Warn("Redis unavailable; bot sessions will reset on every message")
		}
		deps.Redis = rdb
		deps.Sender = whatsapp.NewClient(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.AccessToken)
	}

	app, err := router.Initialize(deps)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go app.Payments.RunSweeper(sweepCtx, cfg.Payment.SweepInterval, cfg.Payment.PendingTTL)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      app.Engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Environment,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopSweep()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	app.Webhooks.Wait()

	logrus.Info("Server exited")
	return nil
}

// paymentProviders registers Stripe for cards when a key is configured and
// sandbox providers otherwise.
func paymentProviders(cfg *config.Config) *payment.Registry {
	var card payment.Provider = payment.NewSandboxProvider(payment.MethodCard)
	if cfg.Payment.StripeSecretKey != "" {
		card = payment.NewStripeCardProvider(cfg.Payment.StripeSecretKey)
	} else {
		logrus.Warn("STRIPE_SECRET_KEY not set; card payments use the sandbox provider")
	}

	if cfg.Payment.MobileMoneyProvider != "sandbox" {
		logrus.WithField("provider", cfg.Payment.MobileMoneyProvider).
			Warn("Unknown mobile money provider; using the sandbox provider")
	}

	return payment.NewRegistry(card, payment.NewSandboxProvider(payment.MethodMobileMoney))
}

func dialChain(ctx context.Context, cfg *config.Config) *blockchain.Gateway {
	gateway, err := blockchain.Dial(ctx, blockchain.Config{
		RPCURL:          cfg.Blockchain.RPCURL,
		ContractAddress: cfg.Blockchain.ContractAddress,
		PrivateKey:      cfg.Blockchain.PrivateKey,
		ChainID:         cfg.Blockchain.ChainID,
		TokenDecimals:   cfg.Blockchain.TokenDecimals,
		TxTimeout:       cfg.Blockchain.TxTimeout,
	})
	if err != nil {
		logrus.WithError(err).WithField("network", cfg.Blockchain.Network).
			Warn("Chain gateway unavailable; crypto payments are disabled")
		return nil
	}
	return gateway
}
