// seed-admin bootstraps a development database: one company, an admin
// console user (username: thorbisAdmin) with an active membership, and
// sandbox processor configs for the three payment backends.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "thorbisAdmin"
	adminPassword = "Th0rbis@dmin"
	adminName     = "Thorbis Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	company, err := ensureCompany(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure company: %v\n", err)
		os.Exit(1)
	}
	companyId := company.ID.String()

	user, err := ensureAdminUser(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure admin user: %v\n", err)
		os.Exit(1)
	}

	if err := ensureMembership(ctx, db, companyId, user.ID); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ensure membership: %v\n", err)
		os.Exit(1)
	}

	configs := []models.CompanyProcessorConfig{
		{
			CompanyId:     companyId,
			ProcessorType: "fortispay",
			Channels:      "online,card_present,tap_to_pay",
			PrimaryFor:    "online,card_present,tap_to_pay",
			MerchantId:    "sandbox-fortis",
			ApiKey:        envOr("FORTISPAY_API_KEY", "sandbox-key"),
			ApiSecret:     envOr("FORTISPAY_API_SECRET", "sandbox-secret"),
			WebhookSecret: envOr("FORTISPAY_WEBHOOK_SECRET", "sandbox-webhook"),
			Priority:      0,
		},
		{
			CompanyId:     companyId,
			ProcessorType: "achbridge",
			Channels:      "ach",
			PrimaryFor:    "ach",
			MerchantId:    "sandbox-achbridge",
			ApiKey:        envOr("ACHBRIDGE_API_KEY", "sandbox-key"),
			ApiSecret:     envOr("ACHBRIDGE_API_SECRET", "sandbox-secret"),
			WebhookSecret: envOr("ACHBRIDGE_WEBHOOK_SECRET", "sandbox-webhook"),
			Priority:      0,
		},
		{
			CompanyId:     companyId,
			ProcessorType: "nuvapay",
			Channels:      "online",
			MerchantId:    "sandbox-nuvapay",
			ApiKey:        envOr("NUVAPAY_API_KEY", "sandbox-key"),
			ApiSecret:     envOr("NUVAPAY_API_SECRET", "sandbox-secret"),
			WebhookSecret: envOr("NUVAPAY_WEBHOOK_SECRET", "sandbox-webhook"),
			Priority:      1,
		},
	}
	for _, cfg := range configs {
		if err := ensureProcessorConfig(ctx, db, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ensure %s config: %v\n", cfg.ProcessorType, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Seeded company %s with admin user %q and %d processor configs\n",
		companyId, adminUsername, len(configs))
}

func ensureCompany(ctx context.Context, db *gorm.DB) (*models.Company, error) {
	var existing models.Company
	err := db.WithContext(ctx).Where("name = ?", "Thorbis Field Services").First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return models.CreateCompany(ctx, &models.NewCompany{
		Name:     "Thorbis Field Services",
		Email:    "ops@thorbis.example",
		Currency: "USD",
	})
}

func ensureAdminUser(ctx context.Context, db *gorm.DB) (*models.User, error) {
	var existing models.User
	err := db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err == nil {
		hashed, hashErr := utils.HashPassword(adminPassword)
		if hashErr != nil {
			return nil, hashErr
		}
		if err := db.WithContext(ctx).Model(&models.User{}).
			Where("username = ?", adminUsername).
			Updates(map[string]any{
				"password":  string(hashed),
				"name":      adminName,
				"is_active": true,
				"role":      models.UserRoleAdmin,
			}).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return models.CreateUser(ctx, &models.NewUser{
		Username: adminUsername,
		Name:     adminName,
		Password: adminPassword,
		Role:     models.UserRoleAdmin,
	})
}

func ensureMembership(ctx context.Context, db *gorm.DB, companyId string, userId int) error {
	var existing models.CompanyMember
	err := db.WithContext(ctx).
		Where("company_id = ? AND user_id = ?", companyId, userId).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	active := true
	member := models.CompanyMember{
		CompanyId: companyId,
		UserId:    userId,
		Role:      models.UserRoleAdmin,
		IsActive:  &active,
	}
	return db.WithContext(ctx).Create(&member).Error
}

func ensureProcessorConfig(ctx context.Context, db *gorm.DB, cfg models.CompanyProcessorConfig) error {
	var existing models.CompanyProcessorConfig
	err := db.WithContext(ctx).
		Where("company_id = ? AND processor_type = ?", cfg.CompanyId, cfg.ProcessorType).
		First(&existing).Error
	if err == nil {
		_ = existing.RemoveInstanceRedis()
		return db.WithContext(ctx).Model(&existing).Updates(map[string]any{
			"channels":       cfg.Channels,
			"primary_for":    cfg.PrimaryFor,
			"merchant_id":    cfg.MerchantId,
			"api_key":        cfg.ApiKey,
			"api_secret":     cfg.ApiSecret,
			"webhook_secret": cfg.WebhookSecret,
			"is_enabled":     true,
			"priority":       cfg.Priority,
		}).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	enabled := true
	cfg.IsEnabled = &enabled
	if err := db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return err
	}
	return cfg.RemoveInstanceRedis()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
