package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jedmorris/CRM-manager/internal/config"
	"github.com/jedmorris/CRM-manager/internal/services"
	"github.com/jedmorris/CRM-manager/pkg/clickup"
	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

var flagLookahead time.Duration

// renewCmd runs the watch renewal sweep directly against the database,
// for cron setups that prefer a process over the internal HTTP endpoint.
var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew expiring Gmail watches and prune the dedup ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			logrus.Warnf("init logger: %v", err)
		}
		appLogger := logrus.StandardLogger()

		db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		gmailClient := gmailapi.NewClient(&gmailapi.Config{
			BaseURL:      cfg.Google.GmailBaseURL,
			TokenURL:     cfg.Google.TokenURL,
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Timeout:      cfg.Google.Timeout,
		}, appLogger)
		clickupClient := clickup.NewClient(&clickup.Config{
			BaseURL: cfg.ClickUp.BaseURL,
			Timeout: cfg.ClickUp.Timeout,
		}, appLogger)

		watches := services.NewWatchService(db, appLogger, gmailClient, clickupClient, cfg)

		lookahead := flagLookahead
		if lookahead <= 0 {
			lookahead = cfg.Scheduler.RenewalLookahead
		}
		if lookahead <= 0 {
			lookahead = 24 * time.Hour
		}

		summary, err := watches.RenewExpiringWatches(context.Background(), lookahead)
		if err != nil {
			return err
		}
		fmt.Printf("renewed: %d, failed: %d\n", summary.Renewed, summary.Failed)
		for _, r := range summary.Results {
			if r.Error != "" {
				fmt.Printf("  %d %s: %s (%s)\n", r.AutomationID, r.Name, r.Status, r.Error)
			} else {
				fmt.Printf("  %d %s: %s\n", r.AutomationID, r.Name, r.Status)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renewCmd)
	renewCmd.Flags().DurationVar(&flagLookahead, "lookahead", 0, "renewal window (default from config)")
}
