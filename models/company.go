package models

import (
	"context"
	"strings"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/google/uuid"
)

type Company struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Currency  string    `gorm:"size:3;not null;default:USD" json:"currency"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	db := config.GetDB()
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	active := true
	company := Company{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    input.Email,
		Currency: currency,
		IsActive: &active,
	}
	if err := db.WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// CompanyMember links a user to a company. The ingestion endpoint requires
// an active membership before touching payment data.
type CompanyMember struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"size:64;not null;index:uniq_member,unique" json:"company_id"`
	UserId    int       `gorm:"not null;index:uniq_member,unique" json:"user_id"`
	Role      UserRole  `gorm:"type:enum('A', 'O', 'T');default:T" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasActiveMembership reports whether userId is an active member of companyId.
func HasActiveMembership(ctx context.Context, userId int, companyId string) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&CompanyMember{}).
		Where("company_id = ? AND user_id = ? AND is_active = ?", companyId, userId, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMemberships returns the company ids a user belongs to. Used by the
// session collaborator surface.
func ListMemberships(ctx context.Context, userId int) ([]CompanyMember, error) {
	db := config.GetDB()
	var members []CompanyMember
	if err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userId, true).
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

/*
caches:
	ProcessorConfigs:$companyId
*/

// CompanyProcessorConfig is one configured payment backend for a company.
// Channels and PrimaryFor are comma-separated channel names; the selector
// filters on Channels and prefers the config whose PrimaryFor names the
// requested channel.
type CompanyProcessorConfig struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"size:64;not null;index:uniq_proc,unique" json:"company_id"`
	ProcessorType string    `gorm:"size:40;not null;index:uniq_proc,unique" json:"processor_type"`
	Channels      string    `gorm:"size:200;not null" json:"channels"`
	PrimaryFor    string    `gorm:"size:200" json:"primary_for"`
	MerchantId    string    `gorm:"size:100" json:"merchant_id"`
	ApiKey        string    `gorm:"size:255" json:"api_key"`
	ApiSecret     string    `gorm:"size:255" json:"-"`
	WebhookSecret string    `gorm:"size:255" json:"-"`
	IsEnabled     *bool     `gorm:"not null;default:true" json:"is_enabled"`
	Priority      int       `gorm:"not null;default:0" json:"priority"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *CompanyProcessorConfig) HasChannel(channel string) bool {
	for _, ch := range strings.Split(c.Channels, ",") {
		if strings.TrimSpace(ch) == channel {
			return true
		}
	}
	return false
}

func (c *CompanyProcessorConfig) IsPrimaryFor(channel string) bool {
	for _, ch := range strings.Split(c.PrimaryFor, ",") {
		if strings.TrimSpace(ch) == channel {
			return true
		}
	}
	return false
}

// ListProcessorConfigs returns the enabled processor configs of a company,
// redis-cached, lowest Priority first.
func ListProcessorConfigs(ctx context.Context, companyId string) ([]CompanyProcessorConfig, error) {
	configs := make([]CompanyProcessorConfig, 0)
	redisKey := "ProcessorConfigs:" + companyId
	exists, err := config.GetRedisObject(redisKey, &configs)
	if err != nil {
		return nil, err
	}
	if exists {
		return configs, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("company_id = ? AND is_enabled = ?", companyId, true).
		Order("priority ASC, id ASC").
		Find(&configs).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(redisKey, &configs, 10*time.Minute); err != nil {
		return nil, err
	}
	return configs, nil
}

func (c CompanyProcessorConfig) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("ProcessorConfigs:" + c.CompanyId)
}
