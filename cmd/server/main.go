// cmd/server/main.go
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/database"
	"github.com/campushub/backend/internal/i18n"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campushub",
		Short: "CampusHub marketplace API",
		Long:  `CampusHub serves the student marketplace API: listings, escrow payments, reward tokens, the WhatsApp bot and the assistant.`,

		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSweepCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration, sets up logging and opens the database.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg)

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, db, nil
}

func setupLogging(cfg *config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
