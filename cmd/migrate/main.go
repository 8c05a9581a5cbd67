package main

import (
	"log"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jedmorris/CRM-manager/internal/config"
	"github.com/jedmorris/CRM-manager/internal/models"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Automation{},
		&models.AutomationLog{},
		&models.ProcessedEvent{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_logs_automation_created ON automation_logs(automation_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automations_user_status ON automations(user_id, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automations_watch_expiration ON automations(gmail_watch_expiration)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_processed_events_processed_at ON processed_events(processed_at)")

	log.Println("Additional indexes created successfully!")
	log.Println("Migration process completed!")
}
